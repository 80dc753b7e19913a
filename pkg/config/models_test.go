package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultModelsConfig(t *testing.T) {
	cfg := DefaultModelsConfig()

	assert.Equal(t, "gpt-5-nano", cfg.Selector)
	assert.Equal(t, "openai", cfg.DefaultProvider)

	// Agent track carries reasoning budget
	assert.Equal(t, ModelChoice{Model: "gpt-5-mini", ReasoningEffort: "high"}, cfg.Table[TaskTrackAgent][DifficultyHigh])
	assert.Equal(t, ModelChoice{Model: "gpt-5-mini", ReasoningEffort: "medium"}, cfg.Table[TaskTrackAgent][DifficultyMedium])
	assert.Equal(t, ModelChoice{Model: "gpt-5-nano", ReasoningEffort: "low"}, cfg.Table[TaskTrackAgent][DifficultyLow])

	// Process track trades reasoning for throughput
	assert.Equal(t, ModelChoice{Model: "gpt-5-mini", ReasoningEffort: "low"}, cfg.Table[TaskTrackProcess][DifficultyHigh])
	assert.Equal(t, ModelChoice{Model: "gpt-5-mini", ReasoningEffort: ""}, cfg.Table[TaskTrackProcess][DifficultyMedium])
	assert.Equal(t, ModelChoice{Model: "gpt-5-nano", ReasoningEffort: ""}, cfg.Table[TaskTrackProcess][DifficultyLow])
}

func TestModelsChoose(t *testing.T) {
	tests := []struct {
		name       string
		track      TaskTrack
		difficulty Difficulty
		want       ModelChoice
	}{
		{
			name:       "agent high",
			track:      TaskTrackAgent,
			difficulty: DifficultyHigh,
			want:       ModelChoice{Model: "gpt-5-mini", ReasoningEffort: "high"},
		},
		{
			name:       "process low",
			track:      TaskTrackProcess,
			difficulty: DifficultyLow,
			want:       ModelChoice{Model: "gpt-5-nano", ReasoningEffort: ""},
		},
		{
			name:       "unknown difficulty falls back to medium",
			track:      TaskTrackAgent,
			difficulty: Difficulty("extreme"),
			want:       ModelChoice{Model: "gpt-5-mini", ReasoningEffort: "medium"},
		},
		{
			name:       "empty difficulty falls back to medium",
			track:      TaskTrackProcess,
			difficulty: Difficulty(""),
			want:       ModelChoice{Model: "gpt-5-mini", ReasoningEffort: ""},
		},
	}

	cfg := DefaultModelsConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Choose(tt.track, tt.difficulty))
		})
	}
}

func TestModelsChooseWithGappyTable(t *testing.T) {
	// A table with holes still resolves via the built-in fallback.
	cfg := &ModelsConfig{
		Selector:        "gpt-5-nano",
		DefaultProvider: "openai",
		Table: map[TaskTrack]map[Difficulty]ModelChoice{
			TaskTrackAgent: {
				DifficultyHigh: {Model: "custom-model", ReasoningEffort: "high"},
			},
		},
	}

	// Present cell wins
	assert.Equal(t, ModelChoice{Model: "custom-model", ReasoningEffort: "high"},
		cfg.Choose(TaskTrackAgent, DifficultyHigh))

	// Missing cell falls back to the built-in table
	assert.Equal(t, ModelChoice{Model: "gpt-5-nano", ReasoningEffort: "low"},
		cfg.Choose(TaskTrackAgent, DifficultyLow))

	// Missing track falls back to the built-in table
	assert.Equal(t, ModelChoice{Model: "gpt-5-mini", ReasoningEffort: ""},
		cfg.Choose(TaskTrackProcess, DifficultyMedium))
}
