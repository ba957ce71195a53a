package metrics

import "time"

// DefaultNamespace is the CloudWatch namespace for image generation metrics.
const DefaultNamespace = "ImageGeneration"

// Generation records the outcome of each orchestration step. A nil or
// disabled Generation records nothing.
type Generation struct {
	namespace string
}

// NewGeneration returns a recorder for namespace, or nil when disabled.
func NewGeneration(namespace string, enabled bool) *Generation {
	if !enabled {
		return nil
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Generation{namespace: namespace}
}

// CacheLookup records a hit or miss for entityType.
func (g *Generation) CacheLookup(entityType string, hit bool) {
	if g == nil {
		return
	}
	name := "CacheMiss"
	if hit {
		name = "CacheHit"
	}
	New(g.namespace).Dimension("EntityType", entityType).Count(name).Flush()
}

// ProviderCall records one provider attempt.
func (g *Generation) ProviderCall(provider string, d time.Duration, errorKind string) {
	if g == nil {
		return
	}
	r := New(g.namespace).
		Dimension("Provider", provider).
		Duration("ProviderLatency", d).
		Count("ProviderCalls")
	if errorKind != "" {
		r.Count("ProviderErrors").Property("errorKind", errorKind)
	}
	r.Flush()
}

// Upload records which tier stored the artifact, or "none".
func (g *Generation) Upload(tier string, sizeBytes int64, d time.Duration) {
	if g == nil {
		return
	}
	New(g.namespace).
		Dimension("UploadTier", tier).
		Count("Uploads").
		Metric("UploadBytes", float64(sizeBytes), UnitBytes).
		Duration("UploadLatency", d).
		Flush()
}

// Outcome records the final result kind of one request.
func (g *Generation) Outcome(entityType, outcome string, d time.Duration) {
	if g == nil {
		return
	}
	New(g.namespace).
		Dimension("EntityType", entityType).
		Dimension("Outcome", outcome).
		Count("Requests").
		Duration("RequestLatency", d).
		Flush()
}
