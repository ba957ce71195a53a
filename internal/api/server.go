// Package api serves generation over HTTP. The same handler runs under
// net/http locally and behind API Gateway via the Lambda proxy adapter.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/metrics"
	"github.com/Appraisily/image-generation-service/internal/orchestrator"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

// ServiceName is reported by the health endpoint and request metrics.
const ServiceName = "image-generation-service"

const maxBodyBytes = 1 << 20

// Server routes API requests to the orchestrator and bulk dispatcher.
type Server struct {
	gen            bulk.Generator
	dispatcher     bulk.Dispatcher
	maxBulk        int
	requestTimeout time.Duration
	metricsEnabled bool
}

// Option configures a Server.
type Option func(*Server)

// WithDispatcher enables POST /api/bulk.
func WithDispatcher(d bulk.Dispatcher, maxItems int) Option {
	return func(s *Server) {
		s.dispatcher = d
		s.maxBulk = maxItems
	}
}

// WithRequestTimeout bounds a single generate call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithRequestMetrics emits per-request EMF metrics.
func WithRequestMetrics(enabled bool) Option {
	return func(s *Server) { s.metricsEnabled = enabled }
}

// NewServer creates a Server around gen.
func NewServer(gen bulk.Generator, opts ...Option) *Server {
	s := &Server{gen: gen}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/bulk", s.handleBulk)

	var h http.Handler = mux
	if s.metricsEnabled {
		h = withMetrics(h)
	}
	return withLogging(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

// POST /api/generate
// Body: {"entityId", "entityType", "attributes", "prompt", "force"}
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req profile.GenerationRequest
	if err := decodeBody(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if force := r.URL.Query().Get("force"); force == "true" || force == "1" {
		req = req.WithForce(true)
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	res := s.gen.GenerateForEntity(ctx, req)
	respondJSON(w, StatusFor(res), res)
}

type bulkRequest struct {
	Requests []profile.GenerationRequest `json:"requests"`
}

type bulkAccepted struct {
	JobID string `json:"jobId"`
	Total int    `json:"total"`
}

// POST /api/bulk
// Body: {"requests": [GenerationRequest, ...]}
// Returns 202 with the job id; results land in the bulk results file.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		httpError(w, http.StatusNotImplemented, "bulk generation is not configured")
		return
	}
	var body bulkRequest
	if err := decodeBody(r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body.Requests) == 0 {
		httpError(w, http.StatusBadRequest, "requests must not be empty")
		return
	}
	if s.maxBulk > 0 && len(body.Requests) > s.maxBulk {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("at most %d requests per bulk job", s.maxBulk))
		return
	}
	for i, req := range body.Requests {
		if err := req.Normalize().Validate(); err != nil {
			httpError(w, http.StatusBadRequest, fmt.Sprintf("requests[%d]: %v", i, err))
			return
		}
	}

	job := bulk.NewJob(body.Requests)
	if err := s.dispatcher.Dispatch(r.Context(), job); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to start bulk job", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, bulkAccepted{JobID: job.ID, Total: len(job.Requests)})
}

// StatusFor maps a result to its HTTP status.
func StatusFor(res orchestrator.Result) int {
	switch res.ErrorKind {
	case "":
		return http.StatusOK
	case orchestrator.ErrValidation:
		return http.StatusBadRequest
	case orchestrator.ErrBillingBlocked:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write response body")
	}
}

// httpError sends a JSON error response. Optional internalDetails are
// logged but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)

		metrics.New(metrics.DefaultNamespace).
			Dimension("Endpoint", r.URL.Path).
			Duration("RequestLatencyMs", time.Since(start)).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Flush()
	})
}
