package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DocketYAMLConfig represents the complete docket.yaml file structure
type DocketYAMLConfig struct {
	Stages *StagesConfig `yaml:"stages"`
	Pool   *PoolConfig   `yaml:"pool"`
	Batch  *BatchConfig  `yaml:"batch"`
	Search *SearchConfig `yaml:"search"`
	Loop   *LoopConfig   `yaml:"loop"`
	Models *ModelsConfig `yaml:"models"`
	API    *APIConfig    `yaml:"api"`
}

// LLMProvidersYAMLConfig represents the complete llm-providers.yaml file structure
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined configurations
//  5. Build in-memory registries
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	// 1. Load configuration files
	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Validate all configuration
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"llm_providers", stats.LLMProviders,
		"model_rows", stats.ModelRows)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	// 1. Load docket.yaml (contains stages, pool, batch, search, loop, models, api)
	docketConfig, err := loader.loadDocketYAML()
	if err != nil {
		return nil, NewLoadError("docket.yaml", err)
	}

	// 2. Load llm-providers.yaml
	llmProviders, err := loader.loadLLMProvidersYAML()
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// 3. Get built-in configuration
	builtin := GetBuiltinConfig()

	// 4. Merge built-in + user-defined providers (user overrides built-in)
	llmProvidersMerged := mergeLLMProviders(builtin.LLMProviders, llmProviders)

	// 5. Resolve each section: start with defaults, then merge user config
	// on top so unset fields keep their defaults.
	stages := DefaultStagesConfig()
	if err := mergeSection(stages, docketConfig.Stages, "stages"); err != nil {
		return nil, err
	}

	pool := DefaultPoolConfig()
	if err := mergeSection(pool, docketConfig.Pool, "pool"); err != nil {
		return nil, err
	}

	batch := DefaultBatchConfig()
	if err := mergeSection(batch, docketConfig.Batch, "batch"); err != nil {
		return nil, err
	}

	search := DefaultSearchConfig()
	if err := mergeSection(search, docketConfig.Search, "search"); err != nil {
		return nil, err
	}

	loop := DefaultLoopConfig()
	if err := mergeSection(loop, docketConfig.Loop, "loop"); err != nil {
		return nil, err
	}

	models := DefaultModelsConfig()
	if err := mergeSection(models, docketConfig.Models, "models"); err != nil {
		return nil, err
	}

	api := DefaultAPIConfig()
	if err := mergeSection(api, docketConfig.API, "api"); err != nil {
		return nil, err
	}

	// 6. Build registries
	llmProviderRegistry := NewLLMProviderRegistry(llmProvidersMerged)

	return &Config{
		configDir:           configDir,
		Stages:              stages,
		Pool:                pool,
		Batch:               batch,
		Search:              search,
		Loop:                loop,
		Models:              models,
		API:                 api,
		LLMProviderRegistry: llmProviderRegistry,
	}, nil
}

// mergeSection merges a user-provided section into defaults
// (non-zero values override).
func mergeSection[T any](defaults *T, user *T, name string) error {
	if user == nil {
		return nil
	}
	if err := mergo.Merge(defaults, user, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s config: %w", name, err)
	}
	return nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadDocketYAML() (*DocketYAMLConfig, error) {
	var config DocketYAMLConfig

	if err := l.loadYAML("docket.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (l *configLoader) loadLLMProvidersYAML() (map[string]LLMProviderConfig, error) {
	var config LLMProvidersYAMLConfig

	// Initialize map to avoid nil map
	config.LLMProviders = make(map[string]LLMProviderConfig)

	if err := l.loadYAML("llm-providers.yaml", &config); err != nil {
		return nil, err
	}

	return config.LLMProviders, nil
}
