// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH" envDefault:"./data/trainer.db"`

	Backend    BackendConfig
	Dialog     DialogConfig
	Bindings   BindingConfig
	Transcript TranscriptConfig
	RateLimit  RateLimitConfig

	// HealthGRPCAddr enables the gRPC health probe when non-empty.
	HealthGRPCAddr string `env:"HEALTH_GRPC_ADDR"`
}

// BackendConfig points the gateway at the training backend.
type BackendConfig struct {
	URL     string        `env:"BACKEND_URL" envDefault:"http://localhost:5000/api/chat"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"90s"`
}

// DialogConfig tunes the per-connection dialog controller.
type DialogConfig struct {
	FinishPhrase string        `env:"FINISH_PHRASE" envDefault:"ЗАВЕРШИТЬ СИМУЛЯЦИЮ"`
	TimerTick    time.Duration `env:"TIMER_TICK" envDefault:"1s"`
}

// BindingConfig controls retention of persisted dialog bindings.
type BindingConfig struct {
	TTL           time.Duration `env:"BINDING_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
}

// TranscriptConfig controls NDJSON dialog transcripts.
type TranscriptConfig struct {
	Enabled   bool   `env:"TRANSCRIPT_ENABLED" envDefault:"true"`
	Dir       string `env:"TRANSCRIPT_DIR" envDefault:"./data/transcripts"`
	QueueSize int    `env:"TRANSCRIPT_QUEUE_SIZE" envDefault:"1000"`
}

// RateLimitConfig bounds inbound chat messages per user.
type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.Dialog.FinishPhrase) == "" {
		return fmt.Errorf("FINISH_PHRASE cannot be empty")
	}
	if c.Dialog.TimerTick <= 0 {
		return fmt.Errorf("TIMER_TICK must be > 0")
	}
	if c.Bindings.TTL <= 0 || c.Bindings.SweepInterval <= 0 {
		return fmt.Errorf("BINDING_TTL and SWEEP_INTERVAL must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}
