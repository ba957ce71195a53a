// Package assets embeds the prompt templates used to ask an LLM for image
// prompts.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/Appraisily/image-generation-service/internal/profile"
)

// PromptWriterSystem is the system instruction for the prompt-writing LLM.
//
//go:embed prompts/prompt-writer-system.txt
var PromptWriterSystem string

//go:embed prompts/appraiser-request.txt
var appraiserRequestTemplate string

//go:embed prompts/location-request.txt
var locationRequestTemplate string

var (
	appraiserRequestTmpl = template.Must(template.New("appraiser").Parse(appraiserRequestTemplate))
	locationRequestTmpl  = template.Must(template.New("location").Parse(locationRequestTemplate))
)

// RenderPromptRequest renders the user message asking the LLM to write an
// image prompt for req.
func RenderPromptRequest(req profile.GenerationRequest) (string, error) {
	tmpl := appraiserRequestTmpl
	if req.EntityType == profile.Location {
		tmpl = locationRequestTmpl
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", err
	}
	return buf.String(), nil
}
