package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Realtime backends.
const (
	BackendLocal = "local"
	BackendRedis = "redis"
	BackendHTTP  = "http"
)

const minSecretLength = 32

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	AppURL        string `env:"APP_URL" default:"http://localhost:8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	SessionSecret string `env:"SESSION_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days

	DatabaseMaxConns int `env:"DATABASE_MAX_CONNS" default:"20"`
	DatabaseMinConns int `env:"DATABASE_MIN_CONNS" default:"2"`

	RealtimeSigningSecret   string        `env:"REALTIME_SIGNING_SECRET"`
	InternalBroadcastSecret string        `env:"INTERNAL_BROADCAST_SECRET"`
	RealtimeBackend         string        `env:"REALTIME_BACKEND" default:"local"`
	RealtimeCoordinatorURL  string        `env:"REALTIME_COORDINATOR_URL"`
	RealtimeTokenTTL        time.Duration `env:"REALTIME_TOKEN_TTL" default:"30s"`
	RealtimeIdleTTL         time.Duration `env:"REALTIME_IDLE_TTL" default:"10m"`
	MaxConnectionsPerEntity int           `env:"REALTIME_MAX_CONNECTIONS_PER_ENTITY" default:"64"`

	WSPingInterval  time.Duration `env:"WS_PING_INTERVAL" default:"25s"`
	WSMaxMissedPong int           `env:"WS_MAX_MISSED_PONGS" default:"2"`
	WSWriteTimeout  time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	WSConnectRate           float64 `env:"WS_CONNECT_RATE" default:"10"`
	WSConnectBurst          int     `env:"WS_CONNECT_BURST" default:"20"`
}

// RealtimeEnabled reports whether both realtime secrets are configured.
func (c *Config) RealtimeEnabled() bool {
	return c.RealtimeSigningSecret != "" && c.InternalBroadcastSecret != ""
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
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
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if cfg.IsProduction() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	secrets := []struct{ name, value string }{
		{"REALTIME_SIGNING_SECRET", cfg.RealtimeSigningSecret},
		{"INTERNAL_BROADCAST_SECRET", cfg.InternalBroadcastSecret},
	}
	for _, s := range secrets {
		if s.value != "" && len(s.value) < minSecretLength {
			return fmt.Errorf("%s must be at least %d characters", s.name, minSecretLength)
		}
	}

	switch cfg.RealtimeBackend {
	case BackendLocal:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for REALTIME_BACKEND=%s", BackendRedis)
		}
	case BackendHTTP:
		if cfg.RealtimeCoordinatorURL == "" {
			return fmt.Errorf("REALTIME_COORDINATOR_URL is required for REALTIME_BACKEND=%s", BackendHTTP)
		}
	default:
		return fmt.Errorf("REALTIME_BACKEND must be one of local, redis, http (got %q)", cfg.RealtimeBackend)
	}

	if cfg.DatabaseMaxConns < 1 || cfg.DatabaseMinConns < 0 || cfg.DatabaseMinConns > cfg.DatabaseMaxConns {
		return fmt.Errorf("DATABASE_MIN_CONNS must be between 0 and DATABASE_MAX_CONNS (%d)", cfg.DatabaseMaxConns)
	}
	if cfg.RealtimeTokenTTL <= 0 {
		return fmt.Errorf("REALTIME_TOKEN_TTL must be positive")
	}
	if cfg.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	if cfg.WSMaxMissedPong < 1 {
		return fmt.Errorf("WS_MAX_MISSED_PONGS must be at least 1")
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
