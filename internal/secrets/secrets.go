// Package secrets resolves provider and CDN API keys from SSM Parameter
// Store at {prefix}/{kebab-case name}, falling back to the environment
// variable of the same name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// Well-known secret names.
const (
	GeminiAPIKey       = "GEMINI_API_KEY"
	FluxAPIKey         = "BFL_API_KEY"
	ImageKitPrivateKey = "IMAGEKIT_PRIVATE_KEY"
)

// ErrNotFound is returned when no source has the secret.
var ErrNotFound = errors.New("secret not configured")

// ParameterGetter is the subset of *ssm.Client the resolver needs.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver looks up secrets. A nil ParameterGetter reads only the environment.
type Resolver struct {
	ssm    ParameterGetter
	prefix string
	getenv func(string) string

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver reading SSM parameters under prefix.
func NewResolver(client ParameterGetter, prefix string) *Resolver {
	return &Resolver{
		ssm:    client,
		prefix: strings.TrimRight(prefix, "/"),
		getenv: os.Getenv,
		cache:  make(map[string]string),
	}
}

// ParamName maps GEMINI_API_KEY to {prefix}/gemini-api-key.
func (r *Resolver) ParamName(name string) string {
	return r.prefix + "/" + strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// Get returns the secret called name. Values found in SSM are memoized.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[name]; ok {
		return v, nil
	}

	var ssmErr error
	if r.ssm != nil {
		v, err := r.fromSSM(ctx, name)
		if err == nil {
			r.cache[name] = v
			return v, nil
		}
		ssmErr = err
	}

	if v := r.getenv(name); v != "" {
		if ssmErr != nil {
			log.Debug().Err(ssmErr).Str("secret", name).Msg("SSM lookup failed, using environment variable")
		}
		return v, nil
	}
	if ssmErr != nil {
		return "", ssmErr
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

func (r *Resolver) fromSSM(ctx context.Context, name string) (string, error) {
	param := r.ParamName(name)
	start := time.Now()
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read %s from SSM: %w", param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("%s: %w", param, ErrNotFound)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}
