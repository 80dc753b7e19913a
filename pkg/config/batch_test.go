package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBatchConfig(t *testing.T) {
	cfg := DefaultBatchConfig()

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 4*time.Hour, cfg.HardCap)
	assert.Equal(t, "24h", cfg.CompletionWindow)
}
