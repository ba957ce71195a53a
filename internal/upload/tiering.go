// Package upload moves a generated artifact to the CDN through an ordered
// list of tiers. A tier runs only after the one before it failed.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/cdn"
	"github.com/Appraisily/image-generation-service/internal/metrics"
	"github.com/Appraisily/image-generation-service/internal/provider"
)

// Tier names.
const (
	TierBuffer    = "buffer"
	TierBase64    = "base64"
	TierRemoteURL = "remote-url"
)

// DefaultTierTimeout bounds a single tier attempt.
const DefaultTierTimeout = 45 * time.Second

// ErrNoSourceURL is returned by the remote URL tier when the provider did
// not host the image.
var ErrNoSourceURL = errors.New("artifact has no source URL")

// Tier is one way of getting an artifact to the CDN.
type Tier interface {
	Name() string
	Upload(ctx context.Context, art *provider.Artifact, opts cdn.Options) (*cdn.Result, error)
}

// Result is a successful upload and the tier that produced it.
type Result struct {
	cdn.Result
	Tier string
}

// TierError records one tier's failure.
type TierError struct {
	Tier string
	Err  error
}

func (e *TierError) Error() string { return e.Tier + ": " + e.Err.Error() }
func (e *TierError) Unwrap() error { return e.Err }

// FailedError reports that every tier failed.
type FailedError struct {
	Attempts []*TierError
}

func (e *FailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "all upload tiers failed: " + strings.Join(parts, "; ")
}

func (e *FailedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// Tiering tries tiers in order.
type Tiering struct {
	tiers   []Tier
	timeout time.Duration
	folder  string
	metrics *metrics.Generation
}

// Option configures a Tiering.
type Option func(*Tiering)

// WithTimeout sets the per-tier timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tiering) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithFolder sets the CDN folder every upload goes to.
func WithFolder(folder string) Option {
	return func(t *Tiering) { t.folder = folder }
}

// WithMetrics records the winning tier.
func WithMetrics(m *metrics.Generation) Option {
	return func(t *Tiering) { t.metrics = m }
}

// New builds a Tiering over an explicit tier list.
func New(tiers []Tier, opts ...Option) *Tiering {
	t := &Tiering{tiers: tiers, timeout: DefaultTierTimeout}
	for _, o := range opts {
		o(t)
	}
	return t
}

// NewDefault builds the standard buffer → base64 → remote URL chain over client.
func NewDefault(client cdn.Client, opts ...Option) *Tiering {
	return New([]Tier{
		BufferTier{Client: client},
		Base64Tier{Client: client},
		RemoteURLTier{Client: client},
	}, opts...)
}

// Upload stores art under fileName. The name is deterministic and replaces
// any earlier object so regeneration updates the URL's content in place.
func (t *Tiering) Upload(ctx context.Context, art *provider.Artifact, fileName string) (*Result, error) {
	opts := cdn.Options{
		FileName:          fileName,
		Folder:            t.folder,
		UseUniqueFileName: false,
		Overwrite:         true,
	}

	start := time.Now()
	failed := &FailedError{}
	for _, tier := range t.tiers {
		if err := ctx.Err(); err != nil {
			failed.Attempts = append(failed.Attempts, &TierError{Tier: tier.Name(), Err: err})
			break
		}

		res, err := t.attempt(ctx, tier, art, opts)
		if err != nil {
			log.Warn().Err(err).
				Str("tier", tier.Name()).
				Str("fileName", fileName).
				Msg("Upload tier failed")
			failed.Attempts = append(failed.Attempts, &TierError{Tier: tier.Name(), Err: err})
			continue
		}

		log.Info().
			Str("tier", tier.Name()).
			Str("fileName", fileName).
			Str("url", res.URL).
			Int("failedTiers", len(failed.Attempts)).
			Dur("duration", time.Since(start)).
			Msg("Artifact uploaded")
		t.metrics.Upload(tier.Name(), res.SizeBytes, time.Since(start))
		return &Result{Result: *res, Tier: tier.Name()}, nil
	}

	t.metrics.Upload("none", 0, time.Since(start))
	if len(failed.Attempts) == 0 {
		return nil, fmt.Errorf("no upload tiers configured")
	}
	return nil, failed
}

func (t *Tiering) attempt(ctx context.Context, tier Tier, art *provider.Artifact, opts cdn.Options) (*cdn.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	res, err := tier.Upload(ctx, art, opts)
	if err != nil {
		return nil, err
	}
	if res == nil || res.URL == "" {
		return nil, fmt.Errorf("CDN returned no URL")
	}
	if res.SizeBytes == 0 {
		res.SizeBytes = int64(len(art.Bytes))
	}
	return res, nil
}

// BufferTier uploads the raw bytes.
type BufferTier struct{ Client cdn.Client }

func (BufferTier) Name() string { return TierBuffer }

func (b BufferTier) Upload(ctx context.Context, art *provider.Artifact, opts cdn.Options) (*cdn.Result, error) {
	if len(art.Bytes) == 0 {
		return nil, fmt.Errorf("artifact has no bytes")
	}
	return b.Client.Upload(ctx, cdn.Source{Bytes: art.Bytes, MIMEType: art.MIMEType}, opts)
}

// Base64Tier re-encodes the payload, which survives transports that mangle
// binary multipart bodies.
type Base64Tier struct{ Client cdn.Client }

func (Base64Tier) Name() string { return TierBase64 }

func (b Base64Tier) Upload(ctx context.Context, art *provider.Artifact, opts cdn.Options) (*cdn.Result, error) {
	if len(art.Bytes) == 0 {
		return nil, fmt.Errorf("artifact has no bytes")
	}
	encoded := base64.StdEncoding.EncodeToString(art.Bytes)
	return b.Client.Upload(ctx, cdn.Source{Base64: encoded, MIMEType: art.MIMEType}, opts)
}

// RemoteURLTier asks the CDN to fetch the provider-hosted image itself.
type RemoteURLTier struct{ Client cdn.Client }

func (RemoteURLTier) Name() string { return TierRemoteURL }

func (r RemoteURLTier) Upload(ctx context.Context, art *provider.Artifact, opts cdn.Options) (*cdn.Result, error) {
	if art.SourceURL == "" {
		return nil, ErrNoSourceURL
	}
	return r.Client.Upload(ctx, cdn.Source{URL: art.SourceURL, MIMEType: art.MIMEType}, opts)
}
