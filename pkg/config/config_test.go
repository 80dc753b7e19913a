package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfigConvenienceMethods tests the convenience methods on Config
func TestConfigConvenienceMethods(t *testing.T) {
	llmProviders := map[string]*LLMProviderConfig{
		"test-provider": {
			Type:         LLMProviderTypeOpenAI,
			BaseURL:      "https://llm.example.com/v1",
			DefaultModel: "test-model",
		},
	}

	cfg := &Config{
		configDir:           "/test/config",
		Models:              DefaultModelsConfig(),
		LLMProviderRegistry: NewLLMProviderRegistry(llmProviders),
	}
	cfg.Models.DefaultProvider = "test-provider"

	t.Run("ConfigDir", func(t *testing.T) {
		assert.Equal(t, "/test/config", cfg.ConfigDir())
	})

	t.Run("GetLLMProvider success", func(t *testing.T) {
		provider, err := cfg.GetLLMProvider("test-provider")
		require.NoError(t, err)
		assert.NotNil(t, provider)
		assert.Equal(t, "test-model", provider.DefaultModel)
	})

	t.Run("GetLLMProvider not found", func(t *testing.T) {
		_, err := cfg.GetLLMProvider("nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("DefaultProvider", func(t *testing.T) {
		provider, err := cfg.DefaultProvider()
		require.NoError(t, err)
		assert.Equal(t, "test-model", provider.DefaultModel)
	})
}

func TestConfigStats(t *testing.T) {
	cfg := &Config{
		Models: DefaultModelsConfig(),
		LLMProviderRegistry: NewLLMProviderRegistry(map[string]*LLMProviderConfig{
			"l1": {}, "l2": {}, "l3": {}, "l4": {},
		}),
	}

	stats := cfg.Stats()
	assert.Equal(t, 4, stats.LLMProviders)
	assert.Equal(t, 6, stats.ModelRows)
}
