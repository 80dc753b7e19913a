package config

// ModelChoice names a provider model plus the reasoning effort to request.
// An empty ReasoningEffort means the parameter is omitted from the call.
type ModelChoice struct {
	Model           string `yaml:"model"`
	ReasoningEffort string `yaml:"reasoning_effort"`
}

// ModelsConfig maps task track and difficulty to a concrete model choice.
type ModelsConfig struct {
	// Selector is the model asked to grade task difficulty.
	Selector string `yaml:"selector"`

	// DefaultProvider names the LLM provider used for all calls.
	DefaultProvider string `yaml:"default_provider"`

	// Table is the (track, difficulty) -> model lookup.
	Table map[TaskTrack]map[Difficulty]ModelChoice `yaml:"table"`
}

// DefaultModelsConfig returns the built-in model table.
//
// Agent-track tasks run tool loops and get reasoning budget; process-track
// tasks are structured extraction and trade reasoning for throughput.
func DefaultModelsConfig() *ModelsConfig {
	return &ModelsConfig{
		Selector:        "gpt-5-nano",
		DefaultProvider: "openai",
		Table: map[TaskTrack]map[Difficulty]ModelChoice{
			TaskTrackAgent: {
				DifficultyHigh:   {Model: "gpt-5-mini", ReasoningEffort: "high"},
				DifficultyMedium: {Model: "gpt-5-mini", ReasoningEffort: "medium"},
				DifficultyLow:    {Model: "gpt-5-nano", ReasoningEffort: "low"},
			},
			TaskTrackProcess: {
				DifficultyHigh:   {Model: "gpt-5-mini", ReasoningEffort: "low"},
				DifficultyMedium: {Model: "gpt-5-mini", ReasoningEffort: ""},
				DifficultyLow:    {Model: "gpt-5-nano", ReasoningEffort: ""},
			},
		},
	}
}

// Choose resolves a model for the given track and difficulty. Unknown
// difficulties fall back to medium; a missing row falls back to the
// built-in table so the lookup is total.
func (c *ModelsConfig) Choose(track TaskTrack, difficulty Difficulty) ModelChoice {
	if !difficulty.IsValid() {
		difficulty = DifficultyMedium
	}
	if row, ok := c.Table[track]; ok {
		if choice, ok := row[difficulty]; ok {
			return choice
		}
	}
	builtin := DefaultModelsConfig()
	if row, ok := builtin.Table[track]; ok {
		if choice, ok := row[difficulty]; ok {
			return choice
		}
	}
	return builtin.Table[TaskTrackAgent][DifficultyMedium]
}
