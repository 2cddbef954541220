package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Surface   SurfaceConfig
	Stream    StreamConfig
	Script    ScriptConfig
	Seed      SeedConfig
	Webhook   WebhookConfig
	Redis     RedisConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string `envconfig:"PORT" default:"8000"`
	Host         string `envconfig:"HOST" default:"0.0.0.0"`
	MaxBodyBytes int64  `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SurfaceConfig controls mutation batching.
type SurfaceConfig struct {
	FlushDelay time.Duration `envconfig:"FLUSH_DELAY" default:"0s"`
	MaxBatch   int           `envconfig:"MAX_BATCH" default:"0"`
}

// StreamConfig controls the websocket hub.
type StreamConfig struct {
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"256"`
	SendBuffer      int           `envconfig:"SEND_BUFFER" default:"256"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	PingInterval    time.Duration `envconfig:"PING_INTERVAL" default:"54s"`
	MaxMessageBytes int64         `envconfig:"MAX_MESSAGE_BYTES" default:"4096"`
}

// ScriptConfig controls the JavaScript runtime pool.
type ScriptConfig struct {
	PoolSize int           `envconfig:"SCRIPT_POOL_SIZE" default:"4"`
	Timeout  time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"5s"`
}

// SeedConfig locates declarative surfaces loaded at startup.
type SeedConfig struct {
	Dir     string `envconfig:"SEED_DIR" default:""`
	Pattern string `envconfig:"SEED_PATTERN" default:"**/*.{yaml,yml,toml,json}"`
}

// WebhookConfig enables the outbound HTTP sink when URL is set.
type WebhookConfig struct {
	URL     string        `envconfig:"WEBHOOK_URL" default:""`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
}

// RedisConfig enables the pub/sub tap when Addr is set.
type RedisConfig struct {
	Addr    string `envconfig:"REDIS_ADDR" default:""`
	Channel string `envconfig:"REDIS_CHANNEL" default:"remotedom"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			MaxBodyBytes: 1 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Stream: StreamConfig{
			HistoryLimit:    256,
			SendBuffer:      256,
			WriteTimeout:    10 * time.Second,
			PingInterval:    54 * time.Second,
			MaxMessageBytes: 4096,
		},
		Script: ScriptConfig{
			PoolSize: 4,
			Timeout:  5 * time.Second,
		},
		Seed: SeedConfig{
			Pattern: "**/*.{yaml,yml,toml,json}",
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Channel: "remotedom",
		},
	}
}
