package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		contains []string
	}{
		{
			name:     "with field",
			err:      NewValidationError("llm_provider", "openai", "base_url", errors.New("base error")),
			contains: []string{"llm_provider", "openai", "base_url", "base error"},
		},
		{
			name:     "without field",
			err:      NewValidationError("stage", "enrich", "", errors.New("must be at least 1")),
			contains: []string{"stage", "enrich", "must be at least 1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, substr := range tt.contains {
				assert.Contains(t, tt.err.Error(), substr)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	base := errors.New("base error")
	err := NewValidationError("stage", "extract", "batch", base)
	assert.True(t, errors.Is(err, base))
}

func TestLoadErrorMessage(t *testing.T) {
	err := NewLoadError("docket.yaml", errors.New("file not found"))
	assert.Contains(t, err.Error(), "failed to load")
	assert.Contains(t, err.Error(), "docket.yaml")
	assert.Contains(t, err.Error(), "file not found")
}

func TestLoadErrorUnwrap(t *testing.T) {
	base := errors.New("base error")
	err := NewLoadError("llm-providers.yaml", base)
	assert.True(t, errors.Is(err, base))
}
