// Package cdn uploads finished images to a content delivery backend and
// returns their stable public URL.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

// Source is the payload of one upload. Exactly one of Bytes, Base64 or URL
// is set.
type Source struct {
	Bytes    []byte
	Base64   string
	URL      string
	MIMEType string
}

// Kind names which payload form a Source carries.
func (s Source) Kind() string {
	switch {
	case len(s.Bytes) > 0:
		return "bytes"
	case s.Base64 != "":
		return "base64"
	case s.URL != "":
		return "url"
	default:
		return "empty"
	}
}

// Options controls naming and replacement.
type Options struct {
	FileName          string
	Folder            string
	UseUniqueFileName bool
	Overwrite         bool
}

// Key joins folder and file name into an object path without a leading slash.
func (o Options) Key() string {
	return strings.TrimPrefix(path.Join("/", o.Folder, o.FileName), "/")
}

// Result describes an uploaded object.
type Result struct {
	URL       string
	FileID    string
	SizeBytes int64
}

// Client uploads a Source to a CDN.
type Client interface {
	Name() string
	Upload(ctx context.Context, src Source, opts Options) (*Result, error)
}

// DefaultMaxFetchBytes bounds a remote image downloaded for upload.
const DefaultMaxFetchBytes = 32 << 20

// ErrTooLarge is returned when a fetched image exceeds the size limit.
var ErrTooLarge = errors.New("remote image exceeds size limit")

// fetchURL downloads a remote image for backends that cannot pull by URL.
func fetchURL(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("fetch %s: %w (%d bytes)", url, ErrTooLarge, limit)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func newFetchClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
