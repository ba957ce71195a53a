// Package main is the bulk worker Lambda. The API Lambda invokes it
// asynchronously (InvocationType=Event) with a bulk.Job payload:
//
//	{"jobId": "bulk-<uuid>", "requests": [{"entityId": "...", "entityType": "..."}]}
//
// Results go to the configured bulk results directory.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/boot"
	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/config"
	"github.com/Appraisily/image-generation-service/internal/logging"
)

var commitHash = "dev"

var (
	coldStart = true
	runner    *bulk.Runner
)

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	// The worker runs jobs itself; it never re-dispatches.
	cfg.Bulk.WorkerLambdaARN = ""
	clients, err := boot.NewClients(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	runner = clients.Runner
	clients.StartupLog("imagegen-worker-lambda", initStart).CommitHash(commitHash).Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, job bulk.Job) (*bulk.Summary, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "imagegen-worker-lambda").Msg("Cold start, first invocation")
	}
	if job.ID == "" {
		return nil, errors.New("bulk job has no jobId")
	}
	log.Info().Str("jobId", job.ID).Int("total", len(job.Requests)).Msg("Worker Lambda invoked")

	sum, _, err := runner.Run(ctx, job)
	return sum, err
}
