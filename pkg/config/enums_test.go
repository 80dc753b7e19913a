package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLLMProviderTypeIsValid(t *testing.T) {
	tests := []struct {
		name     string
		provider LLMProviderType
		valid    bool
	}{
		{"openai", LLMProviderTypeOpenAI, true},
		{"invalid", LLMProviderType("invalid"), false},
		{"empty", LLMProviderType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.provider.IsValid())
		})
	}
}

func TestTaskTrackIsValid(t *testing.T) {
	tests := []struct {
		name  string
		track TaskTrack
		valid bool
	}{
		{"agent", TaskTrackAgent, true},
		{"process", TaskTrackProcess, true},
		{"invalid", TaskTrack("invalid"), false},
		{"empty", TaskTrack(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.track.IsValid())
		})
	}
}

func TestDifficultyIsValid(t *testing.T) {
	tests := []struct {
		name       string
		difficulty Difficulty
		valid      bool
	}{
		{"high", DifficultyHigh, true},
		{"medium", DifficultyMedium, true},
		{"low", DifficultyLow, true},
		{"invalid", Difficulty("invalid"), false},
		{"empty", Difficulty(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.difficulty.IsValid())
		})
	}
}
