package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8080"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL         string `env:"DATABASE_URL"`
	RedisURL            string `env:"REDIS_URL"`
	AdminPasswordHash   string `env:"ADMIN_PASSWORD_HASH"`
	AwaitTimeoutSeconds int    `env:"AWAIT_TIMEOUT_SECONDS" envDefault:"120"`
	AwaitPollIntervalMS int    `env:"AWAIT_POLL_INTERVAL_MS" envDefault:"1000"`
	AuditRetentionHours int    `env:"AUDIT_RETENTION_HOURS" envDefault:"720"`
	RateLimitPerMin     int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) AwaitTimeout() time.Duration {
	return time.Duration(c.AwaitTimeoutSeconds) * time.Second
}

func (c *Config) AwaitPollInterval() time.Duration {
	return time.Duration(c.AwaitPollIntervalMS) * time.Millisecond
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionHours) * time.Hour
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.AwaitTimeoutSeconds <= 0 {
		return fmt.Errorf("AWAIT_TIMEOUT_SECONDS must be positive")
	}
	if c.AwaitPollIntervalMS <= 0 {
		return fmt.Errorf("AWAIT_POLL_INTERVAL_MS must be positive")
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.DatabaseURL == "" {
			log.Warn().Msg("DATABASE_URL is empty in production: audit events are only written to the log")
		}
	}

	return nil
}

// Load reads an optional .env file from the working directory and then parses
// the process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
