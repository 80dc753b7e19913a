package config

import (
	"fmt"
	"os"
	"sync"
)

// LLMProviderConfig defines one OpenAI-compatible provider endpoint
type LLMProviderConfig struct {
	// Provider type (required)
	Type LLMProviderType `yaml:"type"`

	// Base URL of the provider API (required)
	BaseURL string `yaml:"base_url"`

	// Environment variable name holding the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Model used when a request does not name one
	DefaultModel string `yaml:"default_model,omitempty"`
}

// APIKey reads the provider key from the configured environment variable.
func (c *LLMProviderConfig) APIKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	return os.Getenv(env)
}

// LLMProviderRegistry holds the merged provider set behind a read-write
// lock. All accessors are safe for concurrent use.
type LLMProviderRegistry struct {
	providers map[string]*LLMProviderConfig
	mu        sync.RWMutex
}

// NewLLMProviderRegistry copies the given map into a new registry so later
// mutation of the argument cannot reach registered providers.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for name, p := range providers {
		copied[name] = p
	}
	return &LLMProviderRegistry{providers: copied}
}

// Get looks a provider up by name.
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return p, nil
}

// GetAll returns a copy of the registered provider map.
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*LLMProviderConfig, len(r.providers))
	for name, p := range r.providers {
		out[name] = p
	}
	return out
}

// Has reports whether a provider with the given name is registered.
func (r *LLMProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Len returns the number of registered providers.
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
