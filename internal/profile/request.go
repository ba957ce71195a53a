// Package profile defines the generation request for an entity profile image.
package profile

import (
	"fmt"
	"maps"
	"strings"
)

// EntityType names the kind of entity an image is generated for.
type EntityType string

const (
	Appraiser EntityType = "appraiser"
	Location  EntityType = "location"
)

// MaxPromptOverride bounds a caller-supplied prompt.
const MaxPromptOverride = 4000

// ParseEntityType normalizes s and reports whether it names a known type.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case Appraiser, Location:
		return t, true
	}
	return t, false
}

// GenerationRequest describes one image to produce. Treat it as a value:
// methods that change it return a copy.
type GenerationRequest struct {
	EntityID       string            `json:"entityId"`
	EntityType     EntityType        `json:"entityType"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	PromptOverride string            `json:"prompt,omitempty"`
	Force          bool              `json:"force,omitempty"`
}

// NewRequest builds a request with its own copy of attrs.
func NewRequest(entityID string, entityType EntityType, attrs map[string]string) GenerationRequest {
	return GenerationRequest{
		EntityID:   entityID,
		EntityType: entityType,
		Attributes: maps.Clone(attrs),
	}
}

// Attr returns the trimmed value of a named attribute. Lookup is
// case-insensitive: an exact key wins, otherwise the lexically smallest of
// the keys that differ only by case.
func (r GenerationRequest) Attr(name string) string {
	if v, ok := r.Attributes[name]; ok {
		return strings.TrimSpace(v)
	}
	var key, val string
	found := false
	for k, v := range r.Attributes {
		if !strings.EqualFold(strings.TrimSpace(k), name) {
			continue
		}
		if !found || k < key {
			key, val, found = k, v, true
		}
	}
	return strings.TrimSpace(val)
}

// WithOverride returns a copy using prompt as the literal prompt.
func (r GenerationRequest) WithOverride(prompt string) GenerationRequest {
	c := r
	c.Attributes = maps.Clone(r.Attributes)
	c.PromptOverride = prompt
	return c
}

// WithForce returns a copy that bypasses the cache.
func (r GenerationRequest) WithForce(force bool) GenerationRequest {
	c := r
	c.Attributes = maps.Clone(r.Attributes)
	c.Force = force
	return c
}

// Normalize returns a copy with the id trimmed and the entity type lower-cased.
func (r GenerationRequest) Normalize() GenerationRequest {
	c := r
	c.Attributes = maps.Clone(r.Attributes)
	c.EntityID = strings.TrimSpace(r.EntityID)
	c.EntityType, _ = ParseEntityType(string(r.EntityType))
	return c
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the fields every generation needs.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.EntityID) == "" {
		return &ValidationError{Field: "entityId", Message: "must not be empty"}
	}
	if strings.ContainsAny(r.EntityID, "/\\") || strings.Contains(r.EntityID, "..") {
		return &ValidationError{Field: "entityId", Message: "must not contain path separators"}
	}
	if _, ok := ParseEntityType(string(r.EntityType)); !ok {
		return &ValidationError{Field: "entityType", Message: fmt.Sprintf("unknown type %q (want appraiser or location)", r.EntityType)}
	}
	if len(r.PromptOverride) > MaxPromptOverride {
		return &ValidationError{Field: "prompt", Message: fmt.Sprintf("exceeds %d characters", MaxPromptOverride)}
	}
	return nil
}

// FileName is the deterministic CDN object name for an entity image. It
// carries no extension so a regenerated image in another format replaces the
// same object; the format travels as the upload content type.
func FileName(entityType EntityType, entityID string) string {
	return fmt.Sprintf("%s-%s", entityType, entityID)
}
