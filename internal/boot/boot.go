// Package boot builds every collaborator the binaries need from a Config.
// Clients is passed explicitly; there is no package-level state.
package boot

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/Appraisily/image-generation-service/internal/api"
	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/cache"
	"github.com/Appraisily/image-generation-service/internal/cdn"
	"github.com/Appraisily/image-generation-service/internal/config"
	"github.com/Appraisily/image-generation-service/internal/events"
	"github.com/Appraisily/image-generation-service/internal/logging"
	"github.com/Appraisily/image-generation-service/internal/metrics"
	"github.com/Appraisily/image-generation-service/internal/orchestrator"
	"github.com/Appraisily/image-generation-service/internal/prompt"
	"github.com/Appraisily/image-generation-service/internal/provider"
	"github.com/Appraisily/image-generation-service/internal/secrets"
	"github.com/Appraisily/image-generation-service/internal/upload"
)

// Clients holds the wired service.
type Clients struct {
	Config       *config.Config
	Orchestrator *orchestrator.Orchestrator
	Store        cache.Store
	Runner       *bulk.Runner
	Dispatcher   bulk.Dispatcher

	providerName string
	cdnName      string
	llmEnabled   bool
	secrets      *secrets.Resolver
}

// awsClients holds the SDK clients when any backend needs them.
type awsClients struct {
	s3          *s3.Client
	dynamo      *dynamodb.Client
	ssm         *ssm.Client
	lambda      *lambdasvc.Client
	eventbridge *eventbridge.Client
}

// NewClients wires cfg into a ready Orchestrator. Nothing is started.
func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	var ac *awsClients
	if cfg.UsesAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")
		ac = &awsClients{
			s3:          s3.NewFromConfig(awsCfg),
			dynamo:      dynamodb.NewFromConfig(awsCfg),
			ssm:         ssm.NewFromConfig(awsCfg),
			lambda:      lambdasvc.NewFromConfig(awsCfg),
			eventbridge: eventbridge.NewFromConfig(awsCfg),
		}
	}

	var ssmClient secrets.ParameterGetter
	if ac != nil && !cfg.Secrets.DisableSSM {
		ssmClient = ac.ssm
	}
	resolver := secrets.NewResolver(ssmClient, cfg.Secrets.SSMPrefix)

	c := &Clients{Config: cfg, secrets: resolver}

	prov, err := c.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	c.providerName = prov.Name()

	cdnClient, err := c.newCDN(ctx, ac)
	if err != nil {
		return nil, err
	}
	c.cdnName = cdnClient.Name()

	store, err := newStore(cfg, ac)
	if err != nil {
		return nil, err
	}
	c.Store = store

	gen := metrics.NewGeneration(cfg.Metrics.Namespace, cfg.Metrics.Enabled)
	uploader := upload.NewDefault(cdnClient,
		upload.WithTimeout(cfg.CDN.TierTimeout),
		upload.WithFolder(cfg.CDN.Folder),
		upload.WithMetrics(gen),
	)

	deps := orchestrator.Deps{
		Store:     store,
		Policy:    cache.NewPolicy(cfg.Cache.MaxAge),
		AllowList: cfg.AllowList(),
		Prompts:   prompt.NewBuilder(c.newTextGenerator(ctx), cfg.Prompt.Timeout),
		Provider:  prov,
		Uploader:  uploader,
		Metrics:   gen,
	}
	if cfg.Events.Enabled && ac != nil {
		deps.Notifier = events.NewPublisher(ac.eventbridge, cfg.Events.BusName)
	}

	orch, err := orchestrator.New(deps)
	if err != nil {
		return nil, err
	}
	c.Orchestrator = orch

	c.Runner = bulk.NewRunner(orch, cfg.Bulk.Concurrency, cfg.Bulk.ResultsDir)
	if cfg.Bulk.WorkerLambdaARN != "" && ac != nil {
		c.Dispatcher = bulk.NewLambdaDispatcher(ac.lambda, cfg.Bulk.WorkerLambdaARN)
	} else {
		c.Dispatcher = &bulk.LocalDispatcher{Runner: c.Runner}
	}
	return c, nil
}

func (c *Clients) newProvider(ctx context.Context) (provider.Provider, error) {
	pc := c.Config.Provider
	keyName := secrets.FluxAPIKey
	if pc.Name == provider.NameGemini {
		keyName = secrets.GeminiAPIKey
	}
	key, err := c.secrets.Get(ctx, keyName)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
	}
	return provider.New(provider.Options{
		Name:    pc.Name,
		APIKey:  key,
		Model:   pc.Model,
		BaseURL: pc.BaseURL,
		Flux: provider.FluxOptions{
			PollInterval: pc.PollInterval,
			MaxPolls:     pc.MaxPolls,
			Width:        pc.Width,
			Height:       pc.Height,
		},
	})
}

func (c *Clients) newCDN(ctx context.Context, ac *awsClients) (cdn.Client, error) {
	cc := c.Config.CDN
	switch cc.Backend {
	case config.CDNS3:
		if ac == nil {
			return nil, errors.New("cdn s3: AWS clients unavailable")
		}
		return cdn.NewS3Client(ac.s3, cc.Bucket, cc.PublicBaseURL), nil
	default:
		key, err := c.secrets.Get(ctx, secrets.ImageKitPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("cdn imagekit: %w", err)
		}
		return cdn.NewImageKitClient(key), nil
	}
}

func newStore(cfg *config.Config, ac *awsClients) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheDynamo:
		if ac == nil {
			return nil, errors.New("cache dynamodb: AWS clients unavailable")
		}
		return cache.NewDynamoStore(ac.dynamo, cfg.Cache.Table, cfg.Cache.MaxAge), nil
	default:
		return cache.NewFileStore(cfg.Cache.Dir, cache.WithLocalCopies(cfg.Cache.LocalCopy))
	}
}

// newTextGenerator returns nil when the LLM tier is off or has no key,
// which leaves the prompt builder on its template.
func (c *Clients) newTextGenerator(ctx context.Context) prompt.TextGenerator {
	if !c.Config.Prompt.LLMEnabled {
		return nil
	}
	key, err := c.secrets.Get(ctx, secrets.GeminiAPIKey)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini key unavailable, prompts fall back to templates")
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Gemini client, prompts fall back to templates")
		return nil
	}
	c.llmEnabled = true
	return prompt.NewGeminiText(client, c.Config.Prompt.Model)
}

// APIServer returns the HTTP API for these clients.
func (c *Clients) APIServer() *api.Server {
	return api.NewServer(c.Orchestrator,
		api.WithDispatcher(c.Dispatcher, c.Config.Bulk.MaxItems),
		api.WithRequestTimeout(c.Config.Server.RequestTimeout),
		api.WithRequestMetrics(c.Config.Metrics.Enabled),
	)
}

// StartupLog describes the wired backends for binary name.
func (c *Clients) StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	cfg := c.Config
	sl := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Backend("provider", c.providerName).
		Backend("cdn", c.cdnName).
		Backend("cache", cfg.Cache.Backend).
		DynamoTable("cache", cfg.Cache.Table).
		S3Bucket("cdn", cfg.CDN.Bucket).
		LambdaFunc("worker", cfg.Bulk.WorkerLambdaARN).
		Feature("llmPrompts", c.llmEnabled).
		Feature("events", c.Config.Events.Enabled).
		Feature("metrics", c.Config.Metrics.Enabled).
		Config("maxAge", cfg.Cache.MaxAge.String()).
		Config("bulkConcurrency", fmt.Sprint(cfg.Bulk.Concurrency))
	if !cfg.Secrets.DisableSSM {
		sl.SSMParam("prefix", cfg.Secrets.SSMPrefix)
	}
	return sl
}
