package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

var (
	fileFlag        string
	concurrencyFlag int
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Generate images for a JSON array of requests",
	Long: `bulk reads a JSON array of requests, each shaped like
{"entityId": "a1", "entityType": "appraiser", "attributes": {...}},
generates them with bounded concurrency and prints a summary. Per-entity
results are written to the configured results directory.`,
	RunE: runBulk,
}

func init() {
	bulkCmd.Flags().StringVar(&fileFlag, "file", "", "JSON file of generation requests")
	bulkCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Concurrent generations (default from config)")
	_ = bulkCmd.MarkFlagRequired("file")
}

func runBulk(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(fileFlag)
	if err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	var reqs []profile.GenerationRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("parse requests: %w", err)
	}

	ctx := cmd.Context()
	clients := mustClients(ctx, "imagegen")
	runner := clients.Runner
	if concurrencyFlag > 0 {
		runner = bulk.NewRunner(clients.Orchestrator, concurrencyFlag, clients.Config.Bulk.ResultsDir)
	}

	sum, _, err := runner.Run(ctx, bulk.NewJob(reqs))
	if sum != nil {
		if perr := printJSON(sum); perr != nil {
			return perr
		}
	}
	return err
}
