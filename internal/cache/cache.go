// Package cache records the current image for each entity and decides
// whether it can be reused for a new request.
package cache

import (
	"context"
	"time"

	"github.com/Appraisily/image-generation-service/internal/fingerprint"
)

// DefaultMaxAge is roughly six months.
const DefaultMaxAge = 4320 * time.Hour

// Entry is the live image for one entity.
type Entry struct {
	EntityID    string                  `json:"entityId" dynamodbav:"entityId"`
	EntityType  string                  `json:"entityType,omitempty" dynamodbav:"entityType,omitempty"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint" dynamodbav:"fingerprint"`
	ArtifactURL string                  `json:"artifactUrl" dynamodbav:"artifactUrl"`
	CDNFileID   string                  `json:"cdnFileId,omitempty" dynamodbav:"cdnFileId,omitempty"`
	MIMEType    string                  `json:"mimeType,omitempty" dynamodbav:"mimeType,omitempty"`
	SizeBytes   int64                   `json:"sizeBytes,omitempty" dynamodbav:"sizeBytes,omitempty"`
	Prompt      string                  `json:"prompt,omitempty" dynamodbav:"prompt,omitempty"`
	Source      string                  `json:"source,omitempty" dynamodbav:"source,omitempty"`
	LocalPath   string                  `json:"localPath,omitempty" dynamodbav:"-"`
	CreatedAt   time.Time               `json:"createdAt" dynamodbav:"createdAt"`
}

// Key identifies one entity. Ids are only unique within a type.
type Key struct {
	Type string
	ID   string
}

func (k Key) String() string {
	return k.Type + "/" + k.ID
}

// PutInput is what the orchestrator knows after a successful upload.
// Bytes, when set, are kept as a local copy by stores that support it.
type PutInput struct {
	Fingerprint fingerprint.Fingerprint
	ArtifactURL string
	CDNFileID   string
	MIMEType    string
	SizeBytes   int64
	Prompt      string
	Source      string
	Bytes       []byte
	Extension   string
}

// Store persists one entry per entity.
type Store interface {
	// Lookup returns (nil, nil) when there is no entry.
	Lookup(ctx context.Context, key Key) (*Entry, error)
	// Put replaces the entry for key and returns it once persisted.
	Put(ctx context.Context, key Key, in PutInput) (*Entry, error)
}

// Policy decides freshness.
type Policy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// NewPolicy returns a Policy with maxAge, or DefaultMaxAge when zero.
func NewPolicy(maxAge time.Duration) Policy {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return Policy{MaxAge: maxAge, Now: time.Now}
}

// IsFresh reports whether e can serve a request with fingerprint fp:
// the fingerprints match and e is not older than MaxAge.
func (p Policy) IsFresh(e *Entry, fp fingerprint.Fingerprint) bool {
	if e == nil || e.ArtifactURL == "" || e.Fingerprint != fp {
		return false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return now().Sub(e.CreatedAt) <= maxAge
}

func newEntry(key Key, in PutInput, now time.Time) *Entry {
	return &Entry{
		EntityID:    key.ID,
		EntityType:  key.Type,
		Fingerprint: in.Fingerprint,
		ArtifactURL: in.ArtifactURL,
		CDNFileID:   in.CDNFileID,
		MIMEType:    in.MIMEType,
		SizeBytes:   in.SizeBytes,
		Prompt:      in.Prompt,
		Source:      in.Source,
		CreatedAt:   now.UTC(),
	}
}
