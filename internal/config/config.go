package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process-wide settings, loaded from environment variables
// with sensible defaults.
type Config struct {
	MongoURI     string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName string `env:"DATABASE_NAME" envDefault:"inventory_db"`

	Port        int    `env:"PORT" envDefault:"8001"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*"`

	DefaultPageSize int `env:"DEFAULT_PAGE_SIZE" envDefault:"20"`
	MaxPageSize     int `env:"MAX_PAGE_SIZE" envDefault:"100"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Tracing is enabled only when OTELHost is set.
	OTELHost string `env:"OTEL_HOST"`
	OTELPort int    `env:"OTEL_PORT" envDefault:"4318"`

	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Bound on optimistic-concurrency retries per mutation.
	CASMaxRetries int `env:"CAS_MAX_RETRIES" envDefault:"3"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		return nil, fmt.Errorf("MAX_PAGE_SIZE %d is below DEFAULT_PAGE_SIZE %d", cfg.MaxPageSize, cfg.DefaultPageSize)
	}
	return &cfg, nil
}
