package config

import "time"

// StageConfig holds the knobs shared by the lease-driven pipeline stages.
type StageConfig struct {
	// Batch is the maximum number of documents claimed per run.
	Batch int `yaml:"batch"`

	// LeaseTTL bounds how long a claimed document stays locked before
	// another worker may reclaim it.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// LifecycleConfig controls the claim verification scheduler.
type LifecycleConfig struct {
	// DrainHour is the wall-clock hour (in the pipeline zone) at or after
	// which due follow-ups are drained. Earlier runs leave them for the
	// last run of the day.
	DrainHour int `yaml:"drain_hour"`
}

// RoundupConfig controls roundup generation.
type RoundupConfig struct {
	// MaxSeeds caps how many seed entries feed one roundup prompt.
	MaxSeeds int `yaml:"max_seeds"`

	// CutoffDate (YYYY-MM-DD): periods starting before it are never generated.
	CutoffDate string `yaml:"cutoff_date"`
}

// StagesConfig groups per-stage settings from docket.yaml.
type StagesConfig struct {
	Enrich    StageConfig     `yaml:"enrich"`
	Extract   StageConfig     `yaml:"extract"`
	Answers   StageConfig     `yaml:"answers"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Roundup   RoundupConfig   `yaml:"roundup"`
}

// DefaultStagesConfig returns the built-in stage defaults.
func DefaultStagesConfig() *StagesConfig {
	return &StagesConfig{
		Enrich:    StageConfig{Batch: 50, LeaseTTL: time.Hour},
		Extract:   StageConfig{Batch: 20, LeaseTTL: time.Hour},
		Answers:   StageConfig{Batch: 10, LeaseTTL: time.Hour},
		Lifecycle: LifecycleConfig{DrainHour: 23},
		Roundup:   RoundupConfig{MaxSeeds: 20, CutoffDate: "2025-12-15"},
	}
}

// SearchConfig controls the web and news search tools.
type SearchConfig struct {
	// Blacklist domains are excluded from every search query.
	Blacklist []string `yaml:"blacklist"`

	// UserAgent is sent on scraping requests.
	UserAgent string `yaml:"user_agent"`
}

// DefaultSearchConfig returns the built-in search defaults.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Blacklist: []string{"grokipedia.com", "nypost.com", "washingtontimes.com"},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

// LoopConfig controls the agentic tool loop.
type LoopConfig struct {
	// MaxTurns bounds tool-call rounds per request.
	MaxTurns int `yaml:"max_turns"`

	// MaxRetries bounds whole-loop retries when the model returns no text.
	MaxRetries int `yaml:"max_retries"`

	// FetchMaxChars truncates fetched page text.
	FetchMaxChars int `yaml:"fetch_max_chars"`
}

// DefaultLoopConfig returns the built-in tool-loop defaults.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxTurns:      8,
		MaxRetries:    3,
		FetchMaxChars: 50000,
	}
}

// APIConfig controls the read-only HTTP API started by `docket serve`.
type APIConfig struct {
	Port int `yaml:"port"`
}

// DefaultAPIConfig returns the built-in API defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{Port: 8080}
}
