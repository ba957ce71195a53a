package orchestrator

import (
	"errors"

	"github.com/Appraisily/image-generation-service/internal/profile"
)

// ErrorKind is the failure taxonomy exposed to callers.
type ErrorKind string

const (
	ErrValidation     ErrorKind = "ValidationError"
	ErrBillingBlocked ErrorKind = "BillingBlocked"
	ErrProvider       ErrorKind = "ProviderError"
	ErrUpload         ErrorKind = "UploadError"
)

// SourceCache marks a result served from the cache.
const SourceCache = "cache"

// Result is either a success ({imageUrl, cached, prompt, source}) or a
// failure ({errorKind, message}).
type Result struct {
	EntityID     string    `json:"entityId,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	Cached       bool      `json:"cached"`
	Prompt       string    `json:"prompt,omitempty"`
	Source       string    `json:"source,omitempty"`
	PromptSource string    `json:"promptSource,omitempty"`
	Tier         string    `json:"uploadTier,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// OK reports whether the result carries an image.
func (r Result) OK() bool {
	return r.ErrorKind == "" && r.ImageURL != ""
}

func failure(entityID string, kind ErrorKind, err error) Result {
	return Result{EntityID: entityID, ErrorKind: kind, Message: err.Error()}
}

func validationFailure(entityID string, err error) Result {
	var ve *profile.ValidationError
	if errors.As(err, &ve) {
		return Result{EntityID: entityID, ErrorKind: ErrValidation, Message: ve.Error()}
	}
	return failure(entityID, ErrValidation, err)
}
