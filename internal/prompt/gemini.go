package prompt

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultTextModel writes prompts.
const DefaultTextModel = "gemini-2.5-flash"

// GeminiText adapts a genai client to TextGenerator.
type GeminiText struct {
	client *genai.Client
	model  string
}

// NewGeminiText wraps client. An empty model uses DefaultTextModel.
func NewGeminiText(client *genai.Client, model string) *GeminiText {
	if model == "" {
		model = DefaultTextModel
	}
	return &GeminiText{client: client, model: model}
}

// GenerateText asks for a JSON reply to user under the system instruction.
func (g *GeminiText) GenerateText(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), config)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini %s: API error %d: %s", g.model, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("gemini %s: %w", g.model, err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini %s: empty response", g.model)
	}
	return resp.Text(), nil
}
