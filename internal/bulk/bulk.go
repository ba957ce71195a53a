// Package bulk runs many generations under one job id with bounded
// concurrency and records each result to a zstd-compressed JSONL file.
package bulk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Appraisily/image-generation-service/internal/orchestrator"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

// DefaultConcurrency bounds in-flight generations when none is configured.
const DefaultConcurrency = 4

// ErrEmpty is returned for a job with no requests.
var ErrEmpty = errors.New("bulk job has no requests")

// Generator is satisfied by *orchestrator.Orchestrator.
type Generator interface {
	GenerateForEntity(ctx context.Context, req profile.GenerationRequest) orchestrator.Result
}

// Job is a batch of generation requests.
type Job struct {
	ID       string                      `json:"jobId"`
	Requests []profile.GenerationRequest `json:"requests"`
}

// NewJob assigns a fresh id to reqs.
func NewJob(reqs []profile.GenerationRequest) Job {
	return Job{ID: "bulk-" + uuid.New().String(), Requests: reqs}
}

// Summary reports the outcome of a finished job.
type Summary struct {
	JobID       string `json:"jobId"`
	Total       int    `json:"total"`
	Generated   int    `json:"generated"`
	Cached      int    `json:"cached"`
	Failed      int    `json:"failed"`
	ResultsPath string `json:"resultsPath,omitempty"`
	ElapsedMs   int64  `json:"elapsedMs"`
}

// Runner executes jobs against a Generator.
type Runner struct {
	gen         Generator
	concurrency int
	resultsDir  string
}

// NewRunner creates a runner. An empty resultsDir skips writing results.
func NewRunner(gen Generator, concurrency int, resultsDir string) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{gen: gen, concurrency: concurrency, resultsDir: resultsDir}
}

// Run generates every request in job and waits for all of them. Results
// keep the order of job.Requests. A failed entity never stops the others.
func (r *Runner) Run(ctx context.Context, job Job) (*Summary, []orchestrator.Result, error) {
	if len(job.Requests) == 0 {
		return nil, nil, ErrEmpty
	}
	start := time.Now()
	logger := log.With().Str("jobId", job.ID).Int("total", len(job.Requests)).Logger()
	logger.Info().Int("concurrency", r.concurrency).Msg("Bulk job started")

	results := make([]orchestrator.Result, len(job.Requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, req := range job.Requests {
		g.Go(func() error {
			results[i] = r.gen.GenerateForEntity(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	sum := &Summary{JobID: job.ID, Total: len(results)}
	for _, res := range results {
		switch {
		case !res.OK():
			sum.Failed++
		case res.Cached:
			sum.Cached++
		default:
			sum.Generated++
		}
	}

	if r.resultsDir != "" {
		path := filepath.Join(r.resultsDir, job.ID+".jsonl.zst")
		if err := WriteResults(path, results); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("Failed to write bulk results")
			return sum, results, err
		}
		sum.ResultsPath = path
	}
	elapsed := time.Since(start)
	sum.ElapsedMs = elapsed.Milliseconds()

	logger.Info().
		Int("generated", sum.Generated).
		Int("cached", sum.Cached).
		Int("failed", sum.Failed).
		Dur("elapsed", elapsed).
		Msg("Bulk job complete")
	return sum, results, nil
}

// WriteResults stores results as zstd-compressed JSON lines at path.
func WriteResults(path string, results []orchestrator.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)
	for _, res := range results {
		if err := je.Encode(res); err != nil {
			enc.Close()
			return fmt.Errorf("encode result %s: %w", res.EntityID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush results: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return f.Close()
}

// ReadResults decodes a file written by WriteResults.
func ReadResults(path string) ([]orchestrator.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var out []orchestrator.Result
	jd := json.NewDecoder(dec)
	for {
		var res orchestrator.Result
		if err := jd.Decode(&res); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("decode result %d: %w", len(out), err)
		}
		out = append(out, res)
	}
}
