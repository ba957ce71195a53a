// Command imagegen generates and caches profile images for appraisers and
// locations. It serves the HTTP API, runs one-off and bulk generations,
// maintains the local cache and exposes an MCP tool server.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Appraisily/image-generation-service/internal/boot"
	"github.com/Appraisily/image-generation-service/internal/config"
	"github.com/Appraisily/image-generation-service/internal/logging"
)

// Build-time version identity, injected via -ldflags:
//
//	go build -ldflags="-X main.commitHash=${COMMIT_HASH}"
var commitHash = "dev"

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "imagegen",
	Short: "Generate and cache entity profile images",
	Long: `imagegen returns a CDN URL for an appraiser or location profile image.
An image is reused while the entity's visual attributes are unchanged and
the cached entry is younger than the configured max age.

Examples:
  imagegen generate --id a1 --type appraiser --attr specialization=antiques
  imagegen bulk --file entities.json
  imagegen serve --port 8080
  imagegen cache prune --max-age 2160h
  imagegen mcp`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "YAML config file (default $IMAGEGEN_CONFIG)")
	rootCmd.AddCommand(serveCmd, generateCmd, bulkCmd, cacheCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the --config file and environment overrides.
func loadConfig() *config.Config {
	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// mustClients wires the service or exits.
func mustClients(ctx context.Context, name string) *boot.Clients {
	initStart := time.Now()
	cfg := loadConfig()
	clients, err := boot.NewClients(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	clients.StartupLog(name, initStart).CommitHash(commitHash).Log()
	return clients
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
