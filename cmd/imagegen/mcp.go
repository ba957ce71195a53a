package main

import (
	"github.com/spf13/cobra"

	"github.com/Appraisily/image-generation-service/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the generate_profile_image tool over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		clients := mustClients(ctx, "imagegen-mcp")
		return mcpserver.Serve(ctx, mcpserver.New(clients.Orchestrator, commitHash))
	},
}
