package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	fluxBaseURL = "https://api.bfl.ai"
	// DefaultFluxModel is the Black Forest Labs endpoint used for portraits.
	DefaultFluxModel = "flux-pro-1.1"

	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxPolls     = 30
	// DefaultMaxImageBytes bounds a downloaded sample.
	DefaultMaxImageBytes = 32 << 20
)

// FluxOptions tunes the submit-and-poll loop.
type FluxOptions struct {
	PollInterval time.Duration
	MaxPolls     int
	Width        int
	Height       int
}

// FluxClient implements the submit-and-poll provider variant against the
// Black Forest Labs API.
type FluxClient struct {
	apiKey     string
	model      string
	baseURL    string
	opts       FluxOptions
	maxBytes   int64
	httpClient *http.Client
}

// NewFluxClient creates a Flux client. Zero options take defaults.
func NewFluxClient(apiKey, model string, opts FluxOptions) *FluxClient {
	if model == "" {
		model = DefaultFluxModel
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 1024
	}
	return &FluxClient{
		apiKey:   apiKey,
		model:    model,
		baseURL:  fluxBaseURL,
		opts:     opts,
		maxBytes: DefaultMaxImageBytes,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *FluxClient) Name() string { return NameFlux }

type fluxSubmitRequest struct {
	Prompt       string `json:"prompt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	OutputFormat string `json:"output_format"`
}

type fluxSubmitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type fluxResultResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		Sample string `json:"sample"`
	} `json:"result,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Generate submits prompt and polls until the job is ready, fails, or the
// poll ceiling is reached.
func (c *FluxClient) Generate(ctx context.Context, prompt string) (*Artifact, error) {
	start := time.Now()
	job, err := c.submit(ctx, prompt)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("provider", NameFlux).
		Str("requestId", job.RequestID).
		Msg("Flux job submitted")

	sampleURL, err := c.waitForResult(ctx, job)
	if err != nil {
		return nil, err
	}

	data, err := c.fetch(ctx, sampleURL)
	if err != nil {
		return nil, err
	}
	art, err := newArtifact(data, sampleURL)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("provider", NameFlux).
		Str("requestId", job.RequestID).
		Int("attempts", job.Attempts).
		Int("bytes", len(data)).
		Str("mime", art.MIMEType).
		Dur("duration", time.Since(start)).
		Msg("Flux image generated")
	return art, nil
}

func (c *FluxClient) submit(ctx context.Context, prompt string) (*Job, error) {
	body, err := json.Marshal(fluxSubmitRequest{
		Prompt:       prompt,
		Width:        c.opts.Width,
		Height:       c.opts.Height,
		OutputFormat: "png",
	})
	if err != nil {
		return nil, Malformed("marshal submit request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/"+c.model, bytes.NewReader(body))
	if err != nil {
		return nil, Malformed("create submit request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-key", c.apiKey)

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, Classify(status, nil, err)
	}
	if status != http.StatusOK {
		log.Warn().
			Int("status", status).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Flux submit returned error")
		return nil, Classify(status, respBody, nil)
	}

	var sr fluxSubmitResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, Malformed("parse submit response: %v", err)
	}
	if sr.ID == "" {
		return nil, Malformed("submit response missing id")
	}
	return &Job{RequestID: sr.ID, PollingURL: sr.PollingURL, Status: JobSubmitted}, nil
}

// waitForResult polls job until it is Ready and returns the sample URL.
// Each iteration counts as one attempt; exceeding MaxPolls is Transient.
func (c *FluxClient) waitForResult(ctx context.Context, job *Job) (string, error) {
	for job.Attempts < c.opts.MaxPolls {
		select {
		case <-ctx.Done():
			return "", Classify(0, nil, ctx.Err())
		case <-time.After(c.opts.PollInterval):
		}
		job.Attempts++

		res, err := c.poll(ctx, job)
		if err != nil {
			if KindOf(err) == Transient && ctx.Err() == nil {
				log.Debug().Err(err).
					Str("requestId", job.RequestID).
					Int("attempt", job.Attempts).
					Msg("Flux poll failed, retrying")
				continue
			}
			job.Status = JobError
			return "", err
		}

		switch res.Status {
		case "Ready":
			job.Status = JobReady
			if res.Result == nil || res.Result.Sample == "" {
				return "", Malformed("job %s ready without sample URL", job.RequestID)
			}
			return res.Result.Sample, nil
		case "Pending", "Queued", "Processing", "":
			job.Status = JobPending
			log.Debug().
				Str("requestId", job.RequestID).
				Int("attempt", job.Attempts).
				Msg("Flux job pending")
		default:
			job.Status = JobError
			return "", fluxStatusError(job.RequestID, res)
		}
	}

	return "", &Error{
		Kind:    Transient,
		Message: fmt.Sprintf("job %s not ready after %d polls", job.RequestID, job.Attempts),
		Err:     context.DeadlineExceeded,
	}
}

func (c *FluxClient) poll(ctx context.Context, job *Job) (*fluxResultResponse, error) {
	pollURL := job.PollingURL
	if pollURL == "" {
		pollURL = c.baseURL + "/v1/get_result?id=" + url.QueryEscape(job.RequestID)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return nil, Malformed("create poll request: %v", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-key", c.apiKey)

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, Classify(status, nil, err)
	}
	if status != http.StatusOK {
		return nil, Classify(status, respBody, nil)
	}

	var res fluxResultResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, Malformed("parse poll response: %v", err)
	}
	return &res, nil
}

func (c *FluxClient) fetch(ctx context.Context, sampleURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sampleURL, nil)
	if err != nil {
		return nil, Malformed("create fetch request: %v", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(0, nil, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, Classify(resp.StatusCode, nil, fmt.Errorf("read image: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Classify(resp.StatusCode, data, nil)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, Malformed("image at %s exceeds %d bytes", sampleURL, c.maxBytes)
	}
	return data, nil
}

func (c *FluxClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func fluxStatusError(id string, res *fluxResultResponse) *Error {
	msg := fmt.Sprintf("job %s finished with status %q", id, res.Status)
	if len(res.Details) > 0 {
		if b, err := json.Marshal(res.Details); err == nil {
			msg += ": " + truncateString(string(b), 200)
		}
	}
	return Classify(0, []byte(msg), nil)
}
