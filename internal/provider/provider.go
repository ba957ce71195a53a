// Package provider adapts external image-generation services behind a single
// contract: a prompt goes in, a typed Artifact comes out, and every failure
// is classified as Transient, BillingBlocked or Fatal.
package provider

import (
	"context"
	"fmt"
)

// Artifact is a finished image. MIMEType is detected once from Bytes.
// SourceURL is set when the provider also hosts the image.
type Artifact struct {
	Bytes     []byte
	MIMEType  string
	SourceURL string
}

// Extension returns the file extension matching the artifact's MIME type.
func (a *Artifact) Extension() string {
	return Extension(a.MIMEType)
}

// Provider generates an image from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (*Artifact, error)
}

// JobStatus is the lifecycle of a submitted provider job.
type JobStatus string

const (
	JobSubmitted JobStatus = "Submitted"
	JobPending   JobStatus = "Pending"
	JobReady     JobStatus = "Ready"
	JobError     JobStatus = "Error"
)

// Job tracks one submit-and-poll generation. It lives only for the
// duration of a Generate call.
type Job struct {
	RequestID  string
	PollingURL string
	Status     JobStatus
	Attempts   int
}

// Names of the built-in providers, used by configuration.
const (
	NameGemini = "gemini"
	NameFlux   = "flux"
)

// Options configures New.
type Options struct {
	Name   string
	APIKey string
	Model  string
	// BaseURL overrides the provider endpoint (tests, regional hosts).
	BaseURL string
	Flux    FluxOptions
}

// New builds the provider named by opts.Name.
func New(opts Options) (Provider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("provider %q: API key is required", opts.Name)
	}
	switch opts.Name {
	case NameGemini:
		c := NewGeminiClient(opts.APIKey, opts.Model)
		if opts.BaseURL != "" {
			c.baseURL = opts.BaseURL
		}
		return c, nil
	case NameFlux:
		c := NewFluxClient(opts.APIKey, opts.Model, opts.Flux)
		if opts.BaseURL != "" {
			c.baseURL = opts.BaseURL
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want %s or %s)", opts.Name, NameGemini, NameFlux)
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
