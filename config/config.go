package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL"` // empty disables dispatch rate limiting

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// Worker process
	WorkerCount     int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec int    `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	LeaseTimeoutSec int    `env:"LEASE_TIMEOUT_SEC" envDefault:"900" validate:"min=60"`
	ReapIntervalSec int    `env:"REAP_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
	ForecastURL     string `env:"FORECAST_URL" envDefault:"http://localhost:8501"`
	ForecastTimeout int    `env:"FORECAST_TIMEOUT_SEC" envDefault:"300" validate:"min=1"`
	DailySubmitCron string `env:"DAILY_SUBMIT_CRON" envDefault:"0 5 * * *"`
	DailySubmitType string `env:"DAILY_SUBMIT_TYPE" envDefault:"daily_tplus1"`

	// Notification dispatch
	DispatchIntervalSec int    `env:"DISPATCH_INTERVAL_SEC" envDefault:"10" validate:"min=1,max=300"`
	DispatchBatchLimit  int    `env:"DISPATCH_BATCH_LIMIT" envDefault:"100" validate:"min=1,max=1000"`
	DispatchMaxAttempts int    `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"8" validate:"min=1"`
	SendRatePerSec      int    `env:"SEND_RATE_PER_SEC" envDefault:"50" validate:"min=1"`
	ProfileURL          string `env:"PROFILE_URL"` // empty = recipient keys are used as addresses (local dev)
	ProfileTimeoutSec   int    `env:"PROFILE_TIMEOUT_SEC" envDefault:"5" validate:"min=1"`
	WebhookTimeoutSec   int    `env:"WEBHOOK_TIMEOUT_SEC" envDefault:"10" validate:"min=1"`
	ResendAPIKey        string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom          string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps the LOG_LEVEL string to an slog.Level. Defaults to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
