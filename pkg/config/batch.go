package config

import "time"

// BatchConfig controls batch-mode LLM dispatch: how often a submitted
// batch is polled and when a stalled batch is abandoned.
type BatchConfig struct {
	// PollInterval is the delay between status polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// IdleTimeout cancels a batch whose request counts have not advanced
	// for this long. The timer resets whenever completed or total moves.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// HardCap cancels a batch regardless of progress after this long.
	HardCap time.Duration `yaml:"hard_cap"`

	// CompletionWindow is passed through to the provider on batch creation.
	CompletionWindow string `yaml:"completion_window"`
}

// DefaultBatchConfig returns the built-in batch dispatch defaults.
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		PollInterval:     5 * time.Second,
		IdleTimeout:      30 * time.Minute,
		HardCap:          4 * time.Hour,
		CompletionWindow: "24h",
	}
}
