package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	manifestName    = "manifest.json"
	manifestVersion = 1
	artifactDirName = "artifacts"
)

type manifest struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// FileStore keeps entries in a JSON manifest on local disk.
//
// Writers hold an exclusive lock on manifest.json.lock and re-read the
// manifest before modifying it, so concurrent processes sharing the
// directory merge their writes. Within a process a mutex serializes the
// same sequence.
type FileStore struct {
	dir       string
	keepLocal bool
	mu        sync.Mutex
	now       func() time.Time
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLocalCopies writes artifact bytes to dir/artifacts alongside the manifest.
func WithLocalCopies(enabled bool) FileOption {
	return func(s *FileStore) { s.keepLocal = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &FileStore{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.keepLocal {
		if err := os.MkdirAll(filepath.Join(dir, artifactDirName), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return s, nil
}

var _ Store = (*FileStore)(nil)

// Lookup returns the entry for key, or (nil, nil).
func (s *FileStore) Lookup(ctx context.Context, key Key) (*Entry, error) {
	var found *Entry
	err := s.withLock(ctx, false, func() error {
		m, err := s.read()
		if err != nil {
			return err
		}
		if e, ok := m.Entries[key.String()]; ok {
			c := *e
			found = &c
		}
		return nil
	})
	return found, err
}

// Put replaces the entry for key. The manifest is rewritten through a
// temp file and rename, so readers never see a partial file.
func (s *FileStore) Put(ctx context.Context, key Key, in PutInput) (*Entry, error) {
	e := newEntry(key, in, s.now())
	err := s.withLock(ctx, true, func() error {
		if s.keepLocal && len(in.Bytes) > 0 {
			p, err := s.writeArtifact(key, in)
			if err != nil {
				return err
			}
			e.LocalPath = p
		}
		m, err := s.read()
		if err != nil {
			return err
		}
		m.Entries[key.String()] = e
		return s.write(m)
	})
	if err != nil {
		return nil, fmt.Errorf("cache put %s: %w", key, err)
	}
	c := *e
	return &c, nil
}

// Prune removes entries older than maxAge along with their local copies.
// It returns the number of entries removed.
func (s *FileStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	err := s.withLock(ctx, true, func() error {
		m, err := s.read()
		if err != nil {
			return err
		}
		for id, e := range m.Entries {
			if !e.CreatedAt.Before(cutoff) {
				continue
			}
			if e.LocalPath != "" {
				if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
					log.Warn().Err(err).Str("path", e.LocalPath).Msg("Failed to remove local artifact")
				}
			}
			delete(m.Entries, id)
			removed++
		}
		if removed == 0 {
			return nil
		}
		return s.write(m)
	})
	return removed, err
}

// Entries returns a snapshot of every entry.
func (s *FileStore) Entries(ctx context.Context) ([]*Entry, error) {
	var out []*Entry
	err := s.withLock(ctx, false, func() error {
		m, err := s.read()
		if err != nil {
			return err
		}
		for _, e := range m.Entries {
			c := *e
			out = append(out, &c)
		}
		return nil
	})
	return out, err
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, manifestName+".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	if err := lockFile(f, exclusive); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	defer unlockFile(f)

	return fn()
}

func (s *FileStore) read() (*manifest, error) {
	m := &manifest{Version: manifestVersion, Entries: make(map[string]*Entry)}
	data, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*Entry)
	}
	return m, nil
}

func (s *FileStore) write(m *manifest) error {
	m.Version = manifestVersion
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dir, manifestName), data)
}

func (s *FileStore) writeArtifact(key Key, in PutInput) (string, error) {
	ext := in.Extension
	if ext == "" {
		ext = ".png"
	}
	p := filepath.Join(s.dir, artifactDirName, key.Type+"-"+key.ID+ext)
	if err := writeFileAtomic(p, in.Bytes); err != nil {
		return "", fmt.Errorf("write local artifact: %w", err)
	}
	return p, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
