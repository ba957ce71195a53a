// Package orchestrator runs one profile image generation end to end:
// fingerprint, cache check, prompt, provider, upload, cache write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/cache"
	"github.com/Appraisily/image-generation-service/internal/events"
	"github.com/Appraisily/image-generation-service/internal/fingerprint"
	"github.com/Appraisily/image-generation-service/internal/metrics"
	"github.com/Appraisily/image-generation-service/internal/profile"
	"github.com/Appraisily/image-generation-service/internal/prompt"
	"github.com/Appraisily/image-generation-service/internal/provider"
	"github.com/Appraisily/image-generation-service/internal/upload"
)

// PromptBuilder produces the prompt for a request.
type PromptBuilder interface {
	Build(ctx context.Context, req profile.GenerationRequest) prompt.Prompt
}

// Uploader stores an artifact on the CDN under a deterministic name.
type Uploader interface {
	Upload(ctx context.Context, art *provider.Artifact, fileName string) (*upload.Result, error)
}

// Notifier is told about every freshly generated image.
type Notifier interface {
	PublishGenerated(ctx context.Context, evt events.Generated) error
}

// Deps are the collaborators an Orchestrator needs. Notifier and Metrics
// are optional.
type Deps struct {
	Store     cache.Store
	Policy    cache.Policy
	AllowList fingerprint.AllowList
	Prompts   PromptBuilder
	Provider  provider.Provider
	Uploader  Uploader
	Notifier  Notifier
	Metrics   *metrics.Generation
}

// Orchestrator is safe for concurrent use across entities.
type Orchestrator struct {
	deps Deps
}

// New validates deps and returns an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: cache store is required")
	case deps.Prompts == nil:
		return nil, errors.New("orchestrator: prompt builder is required")
	case deps.Provider == nil:
		return nil, errors.New("orchestrator: provider is required")
	case deps.Uploader == nil:
		return nil, errors.New("orchestrator: uploader is required")
	}
	if deps.AllowList == nil {
		deps.AllowList = fingerprint.DefaultAllowList()
	}
	if deps.Policy.MaxAge <= 0 {
		deps.Policy = cache.NewPolicy(deps.Policy.MaxAge)
	}
	return &Orchestrator{deps: deps}, nil
}

// GenerateForEntity returns a cached image when the entity's current entry
// matches the request, and generates a new one otherwise. Failures come
// back as a Result with ErrorKind set; nothing panics or escapes as an error.
func (o *Orchestrator) GenerateForEntity(ctx context.Context, req profile.GenerationRequest) (res Result) {
	start := time.Now()
	req = req.Normalize()
	logger := log.With().
		Str("entityId", req.EntityID).
		Str("entityType", string(req.EntityType)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Generation panicked")
			res = failure(req.EntityID, ErrProvider, fmt.Errorf("internal error: %v", r))
		}
		outcome := "ok"
		switch {
		case res.ErrorKind != "":
			outcome = string(res.ErrorKind)
		case res.Cached:
			outcome = "cached"
		case res.Degraded:
			outcome = "degraded"
		}
		o.deps.Metrics.Outcome(string(req.EntityType), outcome, time.Since(start))
	}()

	if err := req.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Rejected generation request")
		return validationFailure(req.EntityID, err)
	}

	fp := fingerprint.Compute(req, o.deps.AllowList)
	logger = logger.With().Str("fingerprint", string(fp)).Logger()

	key := cache.Key{Type: string(req.EntityType), ID: req.EntityID}
	if !req.Force {
		entry, err := o.deps.Store.Lookup(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("Cache lookup failed, regenerating")
		}
		if o.deps.Policy.IsFresh(entry, fp) {
			o.deps.Metrics.CacheLookup(string(req.EntityType), true)
			logger.Info().Str("url", entry.ArtifactURL).Msg("Serving cached image")
			return Result{
				EntityID:    req.EntityID,
				ImageURL:    entry.ArtifactURL,
				Cached:      true,
				Prompt:      entry.Prompt,
				Source:      SourceCache,
				Fingerprint: string(fp),
			}
		}
	}
	o.deps.Metrics.CacheLookup(string(req.EntityType), false)

	p := o.deps.Prompts.Build(ctx, req)
	logger.Info().
		Str("promptSource", string(p.Source)).
		Int("promptLength", len(p.Text)).
		Msg("Prompt ready")

	art, err := o.generate(ctx, logger, p.Text)
	if err != nil {
		kind := ErrProvider
		if provider.KindOf(err) == provider.BillingBlocked {
			kind = ErrBillingBlocked
		}
		logger.Error().Err(err).Str("errorKind", string(kind)).Msg("Image generation failed")
		res := failure(req.EntityID, kind, err)
		res.Prompt = p.Text
		res.PromptSource = string(p.Source)
		return res
	}

	fileName := profile.FileName(req.EntityType, req.EntityID)
	up, err := o.deps.Uploader.Upload(ctx, art, fileName)
	if err != nil {
		if art.SourceURL != "" && ctx.Err() == nil {
			logger.Warn().Err(err).
				Str("url", art.SourceURL).
				Msg("All upload tiers failed, returning provider URL uncached")
			return Result{
				EntityID:     req.EntityID,
				ImageURL:     art.SourceURL,
				Prompt:       p.Text,
				Source:       o.deps.Provider.Name(),
				PromptSource: string(p.Source),
				Degraded:     true,
				Fingerprint:  string(fp),
			}
		}
		logger.Error().Err(err).Msg("Upload failed")
		res := failure(req.EntityID, ErrUpload, err)
		res.Prompt = p.Text
		res.PromptSource = string(p.Source)
		return res
	}

	if _, err := o.deps.Store.Put(ctx, key, cache.PutInput{
		Fingerprint: fp,
		ArtifactURL: up.URL,
		CDNFileID:   up.FileID,
		MIMEType:    art.MIMEType,
		SizeBytes:   up.SizeBytes,
		Prompt:      p.Text,
		Source:      o.deps.Provider.Name(),
		Bytes:       art.Bytes,
		Extension:   art.Extension(),
	}); err != nil {
		logger.Warn().Err(err).Str("url", up.URL).Msg("Failed to persist cache entry, returning uploaded URL")
	}

	o.notify(ctx, logger, events.Generated{
		EntityID:     req.EntityID,
		EntityType:   string(req.EntityType),
		ImageURL:     up.URL,
		Fingerprint:  string(fp),
		Provider:     o.deps.Provider.Name(),
		PromptSource: string(p.Source),
		UploadTier:   up.Tier,
		GeneratedAt:  time.Now().UTC(),
	})

	logger.Info().
		Str("url", up.URL).
		Str("tier", up.Tier).
		Dur("duration", time.Since(start)).
		Msg("Profile image generated")

	return Result{
		EntityID:     req.EntityID,
		ImageURL:     up.URL,
		Cached:       false,
		Prompt:       p.Text,
		Source:       o.deps.Provider.Name(),
		PromptSource: string(p.Source),
		Tier:         up.Tier,
		Fingerprint:  string(fp),
	}
}

// generate calls the provider, retrying a Transient or Fatal failure once
// with the same prompt. BillingBlocked and caller cancellation are final.
func (o *Orchestrator) generate(ctx context.Context, logger zerolog.Logger, text string) (*provider.Artifact, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		art, err := o.deps.Provider.Generate(ctx, text)
		kind := ""
		if err != nil {
			kind = string(provider.KindOf(err))
		}
		o.deps.Metrics.ProviderCall(o.deps.Provider.Name(), time.Since(start), kind)
		if err == nil {
			return art, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("generation cancelled: %w", err)
		}
		if provider.KindOf(err) == provider.BillingBlocked {
			return nil, err
		}
		if attempt < maxAttempts {
			logger.Warn().Err(err).
				Int("attempt", attempt).
				Str("provider", o.deps.Provider.Name()).
				Str("errorKind", kind).
				Msg("Provider failure, retrying")
		}
	}
	return nil, fmt.Errorf("provider failed after %d attempts: %w", maxAttempts, lastErr)
}

func (o *Orchestrator) notify(ctx context.Context, logger zerolog.Logger, evt events.Generated) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.PublishGenerated(ctx, evt); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish generated event")
	}
}
