// Package mcpserver exposes profile image generation as an MCP tool.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/orchestrator"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

// ToolName is the generation tool's MCP name.
const ToolName = "generate_profile_image"

// GenerateInput is the tool's argument object.
type GenerateInput struct {
	EntityID   string            `json:"entityId" jsonschema:"id of the appraiser or location"`
	EntityType string            `json:"entityType" jsonschema:"appraiser or location"`
	Attributes map[string]string `json:"attributes,omitempty" jsonschema:"descriptive attributes such as specialization, city or style"`
	Prompt     string            `json:"prompt,omitempty" jsonschema:"literal prompt that replaces the generated one"`
	Force      bool              `json:"force,omitempty" jsonschema:"regenerate even when a cached image matches"`
}

func (in GenerateInput) request() profile.GenerationRequest {
	req := profile.NewRequest(in.EntityID, profile.EntityType(in.EntityType), in.Attributes)
	return req.WithOverride(in.Prompt).WithForce(in.Force)
}

// New builds an MCP server with the generation tool registered.
func New(gen bulk.Generator, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "image-generation-service", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Return a CDN URL for an entity's profile image, generating and caching it when needed.",
	}, generateHandler(gen))
	return server
}

func generateHandler(gen bulk.Generator) mcp.ToolHandlerFor[GenerateInput, orchestrator.Result] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, orchestrator.Result, error) {
		res := gen.GenerateForEntity(ctx, in.request())
		if !res.OK() {
			log.Warn().Str("entityId", in.EntityID).Str("errorKind", string(res.ErrorKind)).Msg("MCP generation failed")
			return nil, orchestrator.Result{}, fmt.Errorf("%s: %s", res.ErrorKind, res.Message)
		}
		return nil, res, nil
	}
}

// Serve runs the server over stdio until ctx is done or the client hangs up.
func Serve(ctx context.Context, server *mcp.Server) error {
	log.Info().Str("tool", ToolName).Msg("MCP server listening on stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}
