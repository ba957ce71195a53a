// Package main is the API Lambda: the HTTP API behind API Gateway.
//
// Configuration comes from IMAGEGEN_* environment variables; API keys are
// read from SSM Parameter Store under IMAGEGEN_SSM_PREFIX.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/Appraisily/image-generation-service/internal/boot"
	"github.com/Appraisily/image-generation-service/internal/config"
	"github.com/Appraisily/image-generation-service/internal/logging"
)

var commitHash = "dev"

func main() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	clients, err := boot.NewClients(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	clients.StartupLog("imagegen-lambda", initStart).CommitHash(commitHash).Log()

	adapter := httpadapter.NewV2(clients.APIServer().Handler())
	lambda.Start(adapter.ProxyWithContext)
}
