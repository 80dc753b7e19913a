package config

import (
	"fmt"
	"time"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: providers → models → stages → pool → batch → loop → api
	// This ensures dependencies are validated before dependents

	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("LLM provider validation failed: %w", err)
	}

	if err := v.validateModels(); err != nil {
		return fmt.Errorf("model table validation failed: %w", err)
	}

	if err := v.validateStages(); err != nil {
		return fmt.Errorf("stage validation failed: %w", err)
	}

	if err := v.validatePool(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}

	if err := v.validateBatch(); err != nil {
		return fmt.Errorf("batch validation failed: %w", err)
	}

	if err := v.validateLoop(); err != nil {
		return fmt.Errorf("loop validation failed: %w", err)
	}

	if err := v.validateAPI(); err != nil {
		return fmt.Errorf("API validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLMProviders() error {
	for name, provider := range v.cfg.LLMProviderRegistry.GetAll() {
		if provider.Type == "" {
			return NewValidationError("llm_provider", name, "type", ErrMissingRequiredField)
		}
		if !provider.Type.IsValid() {
			return NewValidationError("llm_provider", name, "type", fmt.Errorf("%w: %s", ErrInvalidValue, provider.Type))
		}
		if provider.BaseURL == "" {
			return NewValidationError("llm_provider", name, "base_url", ErrMissingRequiredField)
		}
		if provider.DefaultModel == "" {
			return NewValidationError("llm_provider", name, "default_model", ErrMissingRequiredField)
		}
	}

	return nil
}

func (v *ConfigValidator) validateModels() error {
	m := v.cfg.Models

	if m.Selector == "" {
		return NewValidationError("models", "selector", "selector", ErrMissingRequiredField)
	}

	if m.DefaultProvider == "" {
		return NewValidationError("models", "default_provider", "default_provider", ErrMissingRequiredField)
	}
	if !v.cfg.LLMProviderRegistry.Has(m.DefaultProvider) {
		return NewValidationError("models", "default_provider", "default_provider",
			fmt.Errorf("LLM provider '%s' not found", m.DefaultProvider))
	}

	// Every (track, difficulty) cell must resolve to a model.
	for _, track := range []TaskTrack{TaskTrackAgent, TaskTrackProcess} {
		row, ok := m.Table[track]
		if !ok {
			return NewValidationError("models", string(track), "table", fmt.Errorf("missing track row"))
		}
		for _, difficulty := range []Difficulty{DifficultyHigh, DifficultyMedium, DifficultyLow} {
			choice, ok := row[difficulty]
			if !ok {
				return NewValidationError("models", string(track), "table",
					fmt.Errorf("missing difficulty '%s'", difficulty))
			}
			if choice.Model == "" {
				return NewValidationError("models", string(track), "table",
					fmt.Errorf("empty model for difficulty '%s'", difficulty))
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateStages() error {
	stages := map[string]StageConfig{
		"enrich":  v.cfg.Stages.Enrich,
		"extract": v.cfg.Stages.Extract,
		"answers": v.cfg.Stages.Answers,
	}
	for name, stage := range stages {
		if stage.Batch < 1 {
			return NewValidationError("stage", name, "batch", fmt.Errorf("must be at least 1"))
		}
		if stage.LeaseTTL <= 0 {
			return NewValidationError("stage", name, "lease_ttl", fmt.Errorf("must be positive"))
		}
	}

	if h := v.cfg.Stages.Lifecycle.DrainHour; h < 0 || h > 23 {
		return NewValidationError("stage", "lifecycle", "drain_hour", fmt.Errorf("must be between 0 and 23"))
	}

	if v.cfg.Stages.Roundup.MaxSeeds < 1 {
		return NewValidationError("stage", "roundup", "max_seeds", fmt.Errorf("must be at least 1"))
	}
	if cutoff := v.cfg.Stages.Roundup.CutoffDate; cutoff != "" {
		if _, err := time.Parse("2006-01-02", cutoff); err != nil {
			return NewValidationError("stage", "roundup", "cutoff_date", fmt.Errorf("%w: %s", ErrInvalidValue, cutoff))
		}
	}

	return nil
}

func (v *ConfigValidator) validatePool() error {
	if v.cfg.Pool.WorkerCount < 1 {
		return NewValidationError("pool", "pool", "worker_count", fmt.Errorf("must be at least 1"))
	}
	if v.cfg.Pool.GracefulShutdownTimeout <= 0 {
		return NewValidationError("pool", "pool", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateBatch() error {
	b := v.cfg.Batch

	if b.PollInterval <= 0 {
		return NewValidationError("batch", "batch", "poll_interval", fmt.Errorf("must be positive"))
	}
	if b.IdleTimeout <= 0 {
		return NewValidationError("batch", "batch", "idle_timeout", fmt.Errorf("must be positive"))
	}
	if b.HardCap < b.IdleTimeout {
		return NewValidationError("batch", "batch", "hard_cap", fmt.Errorf("must be at least idle_timeout"))
	}

	return nil
}

func (v *ConfigValidator) validateLoop() error {
	l := v.cfg.Loop

	if l.MaxTurns < 1 {
		return NewValidationError("loop", "loop", "max_turns", fmt.Errorf("must be at least 1"))
	}
	if l.MaxRetries < 1 {
		return NewValidationError("loop", "loop", "max_retries", fmt.Errorf("must be at least 1"))
	}
	if l.FetchMaxChars < 1 {
		return NewValidationError("loop", "loop", "fetch_max_chars", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *ConfigValidator) validateAPI() error {
	if port := v.cfg.API.Port; port < 1 || port > 65535 {
		return NewValidationError("api", "api", "port", fmt.Errorf("must be between 1 and 65535"))
	}

	return nil
}
