package boot

import (
	"context"
	"testing"

	"github.com/Appraisily/image-generation-service/internal/bulk"
	"github.com/Appraisily/image-generation-service/internal/cache"
	"github.com/Appraisily/image-generation-service/internal/config"
	"github.com/Appraisily/image-generation-service/internal/provider"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Secrets.DisableSSM = true
	cfg.Prompt.LLMEnabled = false
	cfg.Cache.Dir = t.TempDir()
	cfg.Bulk.ResultsDir = t.TempDir()
	return &cfg
}

func TestNewClients_Local(t *testing.T) {
	t.Setenv("BFL_API_KEY", "bfl-test")
	t.Setenv("IMAGEKIT_PRIVATE_KEY", "ik-test")

	c, err := NewClients(context.Background(), localConfig(t))
	if err != nil {
		t.Fatalf("NewClients: %v", err)
	}
	if c.Orchestrator == nil || c.Runner == nil {
		t.Fatal("expected orchestrator and runner")
	}
	if c.providerName != provider.NameFlux || c.cdnName != "imagekit" {
		t.Errorf("unexpected backends %s / %s", c.providerName, c.cdnName)
	}
	if _, ok := c.Store.(*cache.FileStore); !ok {
		t.Errorf("expected file store, got %T", c.Store)
	}
	if _, ok := c.Dispatcher.(*bulk.LocalDispatcher); !ok {
		t.Errorf("expected local dispatcher, got %T", c.Dispatcher)
	}
	if c.APIServer() == nil {
		t.Error("expected API server")
	}
}

func TestNewClients_MissingKey(t *testing.T) {
	t.Setenv("BFL_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("IMAGEKIT_PRIVATE_KEY", "ik-test")

	cfg := localConfig(t)
	cfg.Provider.Name = provider.NameGemini
	if _, err := NewClients(context.Background(), cfg); err == nil {
		t.Error("expected error without a provider key")
	}
}
