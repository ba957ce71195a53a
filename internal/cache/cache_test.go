package cache

import (
	"testing"
	"time"

	"github.com/Appraisily/image-generation-service/internal/fingerprint"
)

func TestPolicy_IsFresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := Policy{MaxAge: 24 * time.Hour, Now: func() time.Time { return now }}
	fp := fingerprint.Fingerprint("abc")

	tests := []struct {
		name  string
		entry *Entry
		want  bool
	}{
		{"nil", nil, false},
		{"match young", &Entry{Fingerprint: fp, ArtifactURL: "u", CreatedAt: now.Add(-time.Hour)}, true},
		{"match at limit", &Entry{Fingerprint: fp, ArtifactURL: "u", CreatedAt: now.Add(-24 * time.Hour)}, true},
		{"match too old", &Entry{Fingerprint: fp, ArtifactURL: "u", CreatedAt: now.Add(-25 * time.Hour)}, false},
		{"fingerprint differs", &Entry{Fingerprint: "other", ArtifactURL: "u", CreatedAt: now}, false},
		{"no url", &Entry{Fingerprint: fp, CreatedAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsFresh(tt.entry, fp); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewPolicy_Default(t *testing.T) {
	if NewPolicy(0).MaxAge != DefaultMaxAge {
		t.Errorf("expected default max age %v", DefaultMaxAge)
	}
}
