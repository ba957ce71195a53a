package main

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Appraisily/image-generation-service/internal/cache"
	"github.com/Appraisily/image-generation-service/internal/config"
)

var maxAgeFlag time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the file cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFileStore()
		if err != nil {
			return err
		}
		entries, err := store.Entries(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop entries older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFileStore()
		if err != nil {
			return err
		}
		maxAge := maxAgeFlag
		if maxAge <= 0 {
			maxAge = loadConfig().Cache.MaxAge
		}
		n, err := store.Prune(cmd.Context(), maxAge)
		if err != nil {
			return err
		}
		log.Info().Int("removed", n).Dur("maxAge", maxAge).Msg("Cache pruned")
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().DurationVar(&maxAgeFlag, "max-age", 0, "Maximum entry age (default from config)")
	cacheCmd.AddCommand(cacheListCmd, cachePruneCmd)
}

// openFileStore opens the configured file cache. DynamoDB entries expire
// through the table's TTL instead.
func openFileStore() (*cache.FileStore, error) {
	cfg := loadConfig()
	if cfg.Cache.Backend != config.CacheFile {
		return nil, errors.New("cache commands need the file backend; dynamodb entries expire by TTL")
	}
	return cache.NewFileStore(cfg.Cache.Dir)
}
