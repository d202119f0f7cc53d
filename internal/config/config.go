// Package config provides configuration types for the gameflow engine.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the gameflow engine and CLI.
type Config struct {
	// Log configures the structured logger.
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Engine configures evaluation and execution intervals.
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Snapshot configures the SQLite export snapshot store.
	// Optional: empty path disables persistence.
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`

	// Telemetry configures OpenTelemetry stdout exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	// Format selects text or json output.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// EngineConfig configures the engine's evaluation behavior.
type EngineConfig struct {
	// EvalIntervalMs is the continuous evaluation interval in milliseconds.
	EvalIntervalMs int `yaml:"eval_interval_ms" mapstructure:"eval_interval_ms" validate:"omitempty,min=1"`
	// PollIntervalMs is how often workflow executions re-check transitions.
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms" validate:"omitempty,min=1"`
	// CacheSize bounds the expression result cache.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// SnapshotConfig configures export snapshot persistence.
type SnapshotConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path" mapstructure:"path"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	// Enabled turns on stdout trace and metric exporters.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Defaults applied when the config file omits a value.
const (
	DefaultEvalIntervalMs = 1000
	DefaultPollIntervalMs = 50
	DefaultCacheSize      = 1000
)

// Load reads the configuration from Viper (file + environment) and
// applies defaults. InitViper must have been called first.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills zero values with engine defaults.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Engine.EvalIntervalMs == 0 {
		c.Engine.EvalIntervalMs = DefaultEvalIntervalMs
	}
	if c.Engine.PollIntervalMs == 0 {
		c.Engine.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Engine.CacheSize == 0 {
		c.Engine.CacheSize = DefaultCacheSize
	}
}

// EvalInterval returns the continuous evaluation interval as a duration.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.Engine.EvalIntervalMs) * time.Millisecond
}

// PollInterval returns the execution poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}
