package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	configDir := setupTestConfigDir(t)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify all sections are populated
	assert.NotNil(t, cfg.Stages)
	assert.NotNil(t, cfg.Pool)
	assert.NotNil(t, cfg.Batch)
	assert.NotNil(t, cfg.Search)
	assert.NotNil(t, cfg.Loop)
	assert.NotNil(t, cfg.Models)
	assert.NotNil(t, cfg.API)
	assert.NotNil(t, cfg.LLMProviderRegistry)

	// Verify built-in provider is loaded
	assert.True(t, cfg.LLMProviderRegistry.Has("openai"))

	// Unset sections keep their defaults
	assert.Equal(t, 50, cfg.Stages.Enrich.Batch)
	assert.Equal(t, 23, cfg.Stages.Lifecycle.DrainHour)
	assert.Equal(t, 5*time.Second, cfg.Batch.PollInterval)

	// Verify stats
	stats := cfg.Stats()
	assert.Greater(t, stats.LLMProviders, 0)
	assert.Equal(t, 6, stats.ModelRows)
}

func TestInitializeAppliesOverrides(t *testing.T) {
	configDir := t.TempDir()

	docketYAML := `
stages:
  enrich:
    batch: 10
  lifecycle:
    drain_hour: 22
pool:
  worker_count: 2
batch:
  idle_timeout: 10m
  hard_cap: 1h
loop:
  max_turns: 4
api:
  port: 9090
`
	err := os.WriteFile(filepath.Join(configDir, "docket.yaml"), []byte(docketYAML), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte("llm_providers: {}"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)

	// Overrides took effect
	assert.Equal(t, 10, cfg.Stages.Enrich.Batch)
	assert.Equal(t, 22, cfg.Stages.Lifecycle.DrainHour)
	assert.Equal(t, 2, cfg.Pool.WorkerCount)
	assert.Equal(t, 10*time.Minute, cfg.Batch.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.Batch.HardCap)
	assert.Equal(t, 4, cfg.Loop.MaxTurns)
	assert.Equal(t, 9090, cfg.API.Port)

	// Sibling fields keep defaults
	assert.Equal(t, time.Hour, cfg.Stages.Enrich.LeaseTTL)
	assert.Equal(t, 20, cfg.Stages.Extract.Batch)
	assert.Equal(t, 5*time.Second, cfg.Batch.PollInterval)
	assert.Equal(t, 3, cfg.Loop.MaxRetries)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	// Write invalid YAML
	invalidYAML := `{{{`
	err := os.WriteFile(filepath.Join(configDir, "docket.yaml"), []byte(invalidYAML), 0644)
	require.NoError(t, err)

	// Create empty llm-providers.yaml
	err = os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte("llm_providers: {}"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeValidationFailure(t *testing.T) {
	configDir := t.TempDir()

	// drain_hour outside 0-23 fails validation
	invalidConfig := `
stages:
  lifecycle:
    drain_hour: 99
`
	err := os.WriteFile(filepath.Join(configDir, "docket.yaml"), []byte(invalidConfig), 0644)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte("llm_providers: {}"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "drain_hour")
}

func TestLoadDocketYAML(t *testing.T) {
	configDir := t.TempDir()

	config := `
stages:
  extract:
    batch: 5
    lease_ttl: 30m
models:
  selector: "test-selector"
search:
  blacklist:
    - spam.example.com
`
	err := os.WriteFile(filepath.Join(configDir, "docket.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	loader := &configLoader{configDir: configDir}
	docketConfig, err := loader.loadDocketYAML()

	require.NoError(t, err)
	require.NotNil(t, docketConfig.Stages)
	assert.Equal(t, 5, docketConfig.Stages.Extract.Batch)
	assert.Equal(t, 30*time.Minute, docketConfig.Stages.Extract.LeaseTTL)
	require.NotNil(t, docketConfig.Models)
	assert.Equal(t, "test-selector", docketConfig.Models.Selector)
	require.NotNil(t, docketConfig.Search)
	assert.Equal(t, []string{"spam.example.com"}, docketConfig.Search.Blacklist)
	assert.Nil(t, docketConfig.Pool)
}

func TestLoadLLMProvidersYAML(t *testing.T) {
	configDir := t.TempDir()

	config := `
llm_providers:
  test-provider:
    type: openai
    base_url: https://llm.example.com/v1
    api_key_env: TEST_API_KEY
    default_model: test-model
`
	err := os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte(config), 0644)
	require.NoError(t, err)

	loader := &configLoader{configDir: configDir}
	providers, err := loader.loadLLMProvidersYAML()

	require.NoError(t, err)
	assert.Len(t, providers, 1)
	provider := providers["test-provider"]
	assert.Equal(t, LLMProviderTypeOpenAI, provider.Type)
	assert.Equal(t, "https://llm.example.com/v1", provider.BaseURL)
	assert.Equal(t, "TEST_API_KEY", provider.APIKeyEnv)
	assert.Equal(t, "test-model", provider.DefaultModel)
}

func TestEnvironmentVariableInterpolationInConfig(t *testing.T) {
	configDir := t.TempDir()

	llmYAML := `
llm_providers:
  openai:
    type: openai
    base_url: "{{.LLM_BASE_URL}}"
    api_key_env: OPENAI_API_KEY
    default_model: gpt-5-nano
`
	err := os.WriteFile(filepath.Join(configDir, "docket.yaml"), []byte("{}"), 0644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(configDir, "llm-providers.yaml"), []byte(llmYAML), 0644)
	require.NoError(t, err)

	t.Setenv("LLM_BASE_URL", "http://proxy.internal:8080/v1")

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	provider, err := cfg.LLMProviderRegistry.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.internal:8080/v1", provider.BaseURL)
}

// Helper function to set up test config directory
func setupTestConfigDir(t *testing.T) string {
	dir := t.TempDir()

	// Create minimal valid docket.yaml
	docketYAML := `
stages: {}
`
	err := os.WriteFile(filepath.Join(dir, "docket.yaml"), []byte(docketYAML), 0644)
	require.NoError(t, err)

	// Create minimal valid llm-providers.yaml
	llmYAML := `
llm_providers: {}
`
	err = os.WriteFile(filepath.Join(dir, "llm-providers.yaml"), []byte(llmYAML), 0644)
	require.NoError(t, err)

	return dir
}
