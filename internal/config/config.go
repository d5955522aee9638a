// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and PITCH_* environment variables.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the document store: memory or badger.
	StoreBackend string `koanf:"store_backend"`

	// DataDir is the badger directory. Ignored for the memory backend.
	DataDir string `koanf:"data_dir"`

	// QueueSize bounds the in-memory change notification queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of change delivery workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the delivered-change id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxAttempts caps deliveries of a single change notification.
	MaxAttempts int `koanf:"max_attempts"`

	// RetryBackoffMS is the delay before a failed change is redelivered.
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// FetchTimeoutMS bounds each collection read of a pipeline run.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// PipelineTimeoutMS bounds a whole pipeline run.
	PipelineTimeoutMS int `koanf:"pipeline_timeout_ms"`

	// SweepIntervalMS is how often ended events without results are
	// looked for.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// NotifyHost writes host notifications on event lifecycle changes.
	NotifyHost bool `koanf:"notify_host"`
}

// New creates a Config populated with defaults. The context is accepted
// first to keep the project-wide signature convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreBackend:      BackendMemory,
		DataDir:           "./data",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        50_000,
		MaxAttempts:       3,
		RetryBackoffMS:    500,
		FetchTimeoutMS:    10_000,
		PipelineTimeoutMS: 60_000,
		SweepIntervalMS:   60_000,
		NotifyHost:        true,
	}
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// PipelineTimeout returns PipelineTimeoutMS as a duration.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutMS) * time.Millisecond
}

// SweepInterval returns SweepIntervalMS as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// RetryBackoff returns RetryBackoffMS as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// Validate checks the values Load cannot coerce.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendBadger:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownBackend, c.StoreBackend)
	case c.StoreBackend == BackendBadger && c.DataDir == "":
		return fmt.Errorf("%w: data_dir is required for the badger backend", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidConfig)
	case c.FetchTimeoutMS <= 0 || c.PipelineTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.SweepIntervalMS <= 0:
		return fmt.Errorf("%w: sweep_interval_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
