package config

// Config is the umbrella configuration object that encapsulates
// all sections, registries, and configuration state.
// This is the primary object returned by Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Pipeline stage settings
	Stages *StagesConfig

	// Worker pool configuration
	Pool *PoolConfig

	// Batch-mode LLM dispatch settings
	Batch *BatchConfig

	// Web/news search tool settings
	Search *SearchConfig

	// Agentic tool loop settings
	Loop *LoopConfig

	// Model selection table
	Models *ModelsConfig

	// Read-only HTTP API settings
	API *APIConfig

	// Component registries
	LLMProviderRegistry *LLMProviderRegistry
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	LLMProviders int
	ModelRows    int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.LLMProviderRegistry != nil {
		s.LLMProviders = c.LLMProviderRegistry.Len()
	}
	if c.Models != nil {
		for _, row := range c.Models.Table {
			s.ModelRows += len(row)
		}
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetLLMProvider retrieves an LLM provider configuration by name.
// This is a convenience method that wraps LLMProviderRegistry.Get().
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}

// DefaultProvider returns the provider named by the models section.
func (c *Config) DefaultProvider() (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(c.Models.DefaultProvider)
}
