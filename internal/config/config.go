// Package config loads service configuration from an optional YAML file
// and IMAGEGEN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Appraisily/image-generation-service/internal/fingerprint"
	"github.com/Appraisily/image-generation-service/internal/profile"
)

// Backend names.
const (
	CacheFile   = "file"
	CacheDynamo = "dynamodb"
	CDNImageKit = "imagekit"
	CDNS3       = "s3"
)

// Config is the full service configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Cache    CacheConfig    `yaml:"cache"`
	CDN      CDNConfig      `yaml:"cdn"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Server   ServerConfig   `yaml:"server"`
	Bulk     BulkConfig     `yaml:"bulk"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ProviderConfig selects and tunes the image provider.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"baseUrl"`
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxPolls     int           `yaml:"maxPolls"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
}

// PromptConfig controls LLM prompt writing.
type PromptConfig struct {
	LLMEnabled bool          `yaml:"llmEnabled"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig selects the cache backend and its freshness policy.
type CacheConfig struct {
	Backend     string              `yaml:"backend"`
	Dir         string              `yaml:"dir"`
	LocalCopy   bool                `yaml:"localCopy"`
	Table       string              `yaml:"table"`
	MaxAge      time.Duration       `yaml:"maxAge"`
	Fingerprint map[string][]string `yaml:"fingerprint"`
}

// CDNConfig selects the upload backend.
type CDNConfig struct {
	Backend       string        `yaml:"backend"`
	Folder        string        `yaml:"folder"`
	Bucket        string        `yaml:"bucket"`
	PublicBaseURL string        `yaml:"publicBaseUrl"`
	TierTimeout   time.Duration `yaml:"tierTimeout"`
}

// SecretsConfig locates API keys in SSM Parameter Store.
type SecretsConfig struct {
	SSMPrefix  string `yaml:"ssmPrefix"`
	DisableSSM bool   `yaml:"disableSsm"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// BulkConfig controls bulk generation.
type BulkConfig struct {
	Concurrency     int    `yaml:"concurrency"`
	ResultsDir      string `yaml:"resultsDir"`
	WorkerLambdaARN string `yaml:"workerLambdaArn"`
	MaxItems        int    `yaml:"maxItems"`
}

// EventsConfig controls EventBridge notifications.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"busName"`
}

// MetricsConfig controls EMF metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() Config {
	allow := fingerprint.DefaultAllowList()
	fp := make(map[string][]string, len(allow))
	for t, fields := range allow {
		fp[string(t)] = fields
	}
	return Config{
		Provider: ProviderConfig{
			Name:         "flux",
			PollInterval: 500 * time.Millisecond,
			MaxPolls:     30,
		},
		Prompt: PromptConfig{
			LLMEnabled: true,
			Timeout:    15 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     CacheFile,
			Dir:         "data/image-cache",
			MaxAge:      4320 * time.Hour,
			Fingerprint: fp,
		},
		CDN: CDNConfig{
			Backend:     CDNImageKit,
			Folder:      "/profiles",
			TierTimeout: 45 * time.Second,
		},
		Secrets: SecretsConfig{
			SSMPrefix: "/image-generation",
		},
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 3 * time.Minute,
		},
		Bulk: BulkConfig{
			Concurrency: 4,
			ResultsDir:  "data/bulk-results",
			MaxItems:    500,
		},
		Metrics: MetricsConfig{
			Namespace: "ImageGeneration",
		},
	}
}

// Load reads path (when non-empty, or IMAGEGEN_CONFIG otherwise) over the
// defaults, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("IMAGEGEN_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("IMAGEGEN_PROVIDER", &c.Provider.Name)
	str("IMAGEGEN_PROVIDER_MODEL", &c.Provider.Model)
	str("IMAGEGEN_PROVIDER_BASE_URL", &c.Provider.BaseURL)
	dur("IMAGEGEN_POLL_INTERVAL", &c.Provider.PollInterval)
	num("IMAGEGEN_MAX_POLLS", &c.Provider.MaxPolls)
	flag("IMAGEGEN_PROMPT_LLM", &c.Prompt.LLMEnabled)
	str("IMAGEGEN_PROMPT_MODEL", &c.Prompt.Model)
	str("IMAGEGEN_CACHE_BACKEND", &c.Cache.Backend)
	str("IMAGEGEN_CACHE_DIR", &c.Cache.Dir)
	str("IMAGEGEN_DYNAMO_TABLE", &c.Cache.Table)
	dur("IMAGEGEN_CACHE_MAX_AGE", &c.Cache.MaxAge)
	str("IMAGEGEN_CDN", &c.CDN.Backend)
	str("IMAGEGEN_CDN_FOLDER", &c.CDN.Folder)
	str("IMAGEGEN_S3_BUCKET", &c.CDN.Bucket)
	str("IMAGEGEN_PUBLIC_BASE_URL", &c.CDN.PublicBaseURL)
	str("IMAGEGEN_SSM_PREFIX", &c.Secrets.SSMPrefix)
	flag("IMAGEGEN_DISABLE_SSM", &c.Secrets.DisableSSM)
	num("IMAGEGEN_PORT", &c.Server.Port)
	num("IMAGEGEN_BULK_CONCURRENCY", &c.Bulk.Concurrency)
	str("IMAGEGEN_BULK_RESULTS_DIR", &c.Bulk.ResultsDir)
	str("IMAGEGEN_WORKER_LAMBDA_ARN", &c.Bulk.WorkerLambdaARN)
	str("IMAGEGEN_EVENT_BUS", &c.Events.BusName)
	flag("IMAGEGEN_EVENTS", &c.Events.Enabled)
	flag("IMAGEGEN_METRICS", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider.Name {
	case "gemini", "flux":
	default:
		errs = append(errs, fmt.Errorf("provider.name %q: want gemini or flux", c.Provider.Name))
	}
	if c.Provider.MaxPolls <= 0 {
		errs = append(errs, errors.New("provider.maxPolls must be positive"))
	}
	if c.Provider.PollInterval <= 0 {
		errs = append(errs, errors.New("provider.pollInterval must be positive"))
	}
	switch c.Cache.Backend {
	case CacheFile:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the file backend"))
		}
	case CacheDynamo:
		if c.Cache.Table == "" {
			errs = append(errs, errors.New("cache.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want %s or %s", c.Cache.Backend, CacheFile, CacheDynamo))
	}
	if c.Cache.MaxAge <= 0 {
		errs = append(errs, errors.New("cache.maxAge must be positive"))
	}
	for t := range c.Cache.Fingerprint {
		if _, ok := profile.ParseEntityType(t); !ok {
			errs = append(errs, fmt.Errorf("cache.fingerprint: unknown entity type %q", t))
		}
	}
	switch c.CDN.Backend {
	case CDNImageKit:
	case CDNS3:
		if c.CDN.Bucket == "" {
			errs = append(errs, errors.New("cdn.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cdn.backend %q: want %s or %s", c.CDN.Backend, CDNImageKit, CDNS3))
	}
	if c.Bulk.Concurrency <= 0 {
		errs = append(errs, errors.New("bulk.concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// AllowList converts the fingerprint settings to a fingerprint.AllowList.
// Entity types the configuration leaves out keep their defaults.
func (c *Config) AllowList() fingerprint.AllowList {
	allow := fingerprint.DefaultAllowList()
	for t, fields := range c.Cache.Fingerprint {
		et, _ := profile.ParseEntityType(t)
		allow[et] = fields
	}
	return allow
}

// UsesAWS reports whether any configured backend needs AWS credentials.
func (c *Config) UsesAWS() bool {
	return !c.Secrets.DisableSSM ||
		c.Cache.Backend == CacheDynamo ||
		c.CDN.Backend == CDNS3 ||
		c.Events.Enabled ||
		c.Bulk.WorkerLambdaARN != ""
}

// String summarizes the backends for logs.
func (c *Config) String() string {
	return strings.Join([]string{
		"provider=" + c.Provider.Name,
		"cache=" + c.Cache.Backend,
		"cdn=" + c.CDN.Backend,
	}, " ")
}
