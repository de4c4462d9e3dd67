package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Vote store backends selectable via VOTE_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	AppEnv       string `env:"APP_ENV" default:"development"`
	Port         string `env:"PORT" default:"8080"`
	InternalAddr string `env:"INTERNAL_ADDR" default:"127.0.0.1:8081"`
	AppURL       string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`

	VoteStore   string `env:"VOTE_STORE" default:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionRateBurst     int     `env:"CONNECTION_RATE_BURST" default:"20"`

	VoteRatePerSecond float64 `env:"VOTE_RATE_PER_SECOND" default:"2"`
	VoteRateBurst     int     `env:"VOTE_RATE_BURST" default:"5"`

	MaxInflightBroadcasts int           `env:"MAX_INFLIGHT_BROADCASTS" default:"64"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// IsDevelopment reports whether the app runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.VoteStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when VOTE_STORE=postgres")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when VOTE_STORE=redis")
		}
	default:
		return fmt.Errorf("VOTE_STORE must be one of memory, postgres, redis (got %q)", cfg.VoteStore)
	}

	positive := map[string]int{
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxWebSocketConnections,
		"MAX_CONNECTIONS_PER_IP":    cfg.MaxConnectionsPerIP,
		"CONNECTION_RATE_BURST":     cfg.ConnectionRateBurst,
		"VOTE_RATE_BURST":           cfg.VoteRateBurst,
		"MAX_INFLIGHT_BROADCASTS":   cfg.MaxInflightBroadcasts,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.ConnectionRatePerIP <= 0 {
		return errors.New("CONNECTION_RATE_PER_IP must be positive")
	}
	if cfg.VoteRatePerSecond <= 0 {
		return errors.New("VOTE_RATE_PER_SECOND must be positive")
	}
	return nil
}
