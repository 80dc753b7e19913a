package config

// LLMProviderType defines supported LLM provider wire protocols
type LLMProviderType string

const (
	// LLMProviderTypeOpenAI is the OpenAI-compatible HTTP API
	// (files, batches, chat completions, responses)
	LLMProviderTypeOpenAI LLMProviderType = "openai"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	return t == LLMProviderTypeOpenAI
}

// TaskTrack separates interactive agent work from bulk processing work in
// the model table
type TaskTrack string

const (
	// TaskTrackAgent is tool-loop work: check-ins, fact checks, roundups
	TaskTrackAgent TaskTrack = "agent"
	// TaskTrackProcess is bulk structured extraction work
	TaskTrackProcess TaskTrack = "process"
)

// IsValid checks if the task track is valid
func (t TaskTrack) IsValid() bool {
	return t == TaskTrackAgent || t == TaskTrackProcess
}

// Difficulty grades how demanding a request is expected to be
type Difficulty string

const (
	DifficultyHigh   Difficulty = "high"
	DifficultyMedium Difficulty = "medium"
	DifficultyLow    Difficulty = "low"
)

// IsValid checks if the difficulty is valid
func (d Difficulty) IsValid() bool {
	return d == DifficultyHigh || d == DifficultyMedium || d == DifficultyLow
}
