package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLLMProviders(t *testing.T) {
	builtin := map[string]LLMProviderConfig{
		"builtin-provider": {
			Type:         LLMProviderTypeOpenAI,
			BaseURL:      "https://builtin.example.com/v1",
			APIKeyEnv:    "BUILTIN_KEY",
			DefaultModel: "builtin-model",
		},
		"override-me": {
			Type:         LLMProviderTypeOpenAI,
			BaseURL:      "https://old.example.com/v1",
			DefaultModel: "old-model",
		},
	}

	user := map[string]LLMProviderConfig{
		"user-provider": {
			Type:         LLMProviderTypeOpenAI,
			BaseURL:      "https://user.example.com/v1",
			APIKeyEnv:    "USER_KEY",
			DefaultModel: "user-model",
		},
		"override-me": {
			Type:         LLMProviderTypeOpenAI,
			BaseURL:      "https://new.example.com/v1",
			APIKeyEnv:    "NEW_KEY",
			DefaultModel: "new-model",
		},
	}

	result := mergeLLMProviders(builtin, user)

	// Should have 3 providers total
	assert.Len(t, result, 3)

	// Built-in provider should exist
	assert.Contains(t, result, "builtin-provider")
	assert.Equal(t, "builtin-model", result["builtin-provider"].DefaultModel)
	assert.Equal(t, "BUILTIN_KEY", result["builtin-provider"].APIKeyEnv)

	// User provider should exist
	assert.Contains(t, result, "user-provider")
	assert.Equal(t, "user-model", result["user-provider"].DefaultModel)

	// Overridden provider should have user values
	assert.Contains(t, result, "override-me")
	assert.Equal(t, "new-model", result["override-me"].DefaultModel)
	assert.Equal(t, "NEW_KEY", result["override-me"].APIKeyEnv)
	assert.Equal(t, "https://new.example.com/v1", result["override-me"].BaseURL)
}

func TestMergeLLMProvidersEmptyMaps(t *testing.T) {
	t.Run("empty user providers", func(t *testing.T) {
		builtin := map[string]LLMProviderConfig{
			"provider1": {Type: LLMProviderTypeOpenAI, DefaultModel: "model1"},
		}
		result := mergeLLMProviders(builtin, map[string]LLMProviderConfig{})
		assert.Len(t, result, 1)
		assert.Contains(t, result, "provider1")
	})

	t.Run("nil builtin providers", func(t *testing.T) {
		result := mergeLLMProviders(nil, map[string]LLMProviderConfig{
			"provider1": {Type: LLMProviderTypeOpenAI, DefaultModel: "model1"},
		})
		assert.Len(t, result, 1)
	})

	t.Run("both empty", func(t *testing.T) {
		result := mergeLLMProviders(map[string]LLMProviderConfig{}, map[string]LLMProviderConfig{})
		assert.Len(t, result, 0)
	})
}

func TestMergeLLMProvidersReturnsCopies(t *testing.T) {
	builtin := map[string]LLMProviderConfig{
		"provider1": {Type: LLMProviderTypeOpenAI, DefaultModel: "model1"},
	}

	result := mergeLLMProviders(builtin, nil)
	result["provider1"].DefaultModel = "mutated"

	// Source map should be unchanged
	assert.Equal(t, "model1", builtin["provider1"].DefaultModel)
}
