// Package prompt turns a generation request into the text sent to an image
// provider. Build always returns a usable prompt: an LLM failure falls back
// to a deterministic template.
package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/assets"
	"github.com/Appraisily/image-generation-service/internal/jsonutil"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

// Source names where a prompt came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceLLM      Source = "llm"
	SourceTemplate Source = "template"
)

// DefaultLLMTimeout bounds the single LLM attempt.
const DefaultLLMTimeout = 15 * time.Second

const maxLLMPrompt = 2000

// Prompt is the text for one generation and its origin.
type Prompt struct {
	Text   string
	Source Source
}

// TextGenerator produces text from a system instruction and a user message.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// Builder chooses between an override, an LLM-written prompt and the
// deterministic template.
type Builder struct {
	llm     TextGenerator
	timeout time.Duration
}

// NewBuilder returns a Builder. A nil llm skips straight to the template.
func NewBuilder(llm TextGenerator, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &Builder{llm: llm, timeout: timeout}
}

// Build never fails.
func (b *Builder) Build(ctx context.Context, req profile.GenerationRequest) Prompt {
	if override := strings.TrimSpace(req.PromptOverride); override != "" {
		return Prompt{Text: req.PromptOverride, Source: SourceOverride}
	}

	if b.llm != nil {
		if text, ok := b.fromLLM(ctx, req); ok {
			return Prompt{Text: text, Source: SourceLLM}
		}
	}

	return Prompt{Text: Template(req), Source: SourceTemplate}
}

type llmReply struct {
	Prompt string `json:"prompt"`
}

func (b *Builder) fromLLM(ctx context.Context, req profile.GenerationRequest) (string, bool) {
	user, err := assets.RenderPromptRequest(req)
	if err != nil {
		log.Warn().Err(err).Str("entityId", req.EntityID).Msg("Failed to render prompt request, using template")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	raw, err := b.llm.GenerateText(ctx, assets.PromptWriterSystem, user)
	if err != nil {
		log.Warn().Err(err).
			Str("entityId", req.EntityID).
			Dur("duration", time.Since(start)).
			Msg("Prompt LLM failed, using template")
		return "", false
	}

	text := ""
	if reply, err := jsonutil.ParseJSON[llmReply](raw); err == nil {
		text = reply.Prompt
	} else if !strings.Contains(raw, "{") {
		text = raw
	}
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxLLMPrompt {
		log.Warn().
			Str("entityId", req.EntityID).
			Int("responseLength", len(raw)).
			Msg("Prompt LLM returned an unusable response, using template")
		return "", false
	}

	log.Debug().
		Str("entityId", req.EntityID).
		Int("promptLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Prompt written by LLM")
	return text, true
}
