package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.GracefulShutdownTimeout)
}
