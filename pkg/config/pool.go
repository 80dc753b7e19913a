package config

import "time"

// PoolConfig controls the background worker pool used by `docket run`.
type PoolConfig struct {
	// WorkerCount is the number of concurrent stage workers.
	WorkerCount int `yaml:"worker_count"`

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight
	// stage runs before giving up.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultPoolConfig returns the built-in worker pool defaults.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkerCount:             5,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
