// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Chat transport
	TelegramToken string
	PollTimeout   time.Duration

	// Web
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// File tree
	FilesRoot string

	// Access control bootstrap: this chat user id is escalated to
	// super_admin on first contact and can never be demoted.
	SuperAdminID int64

	// Share links
	PublicBaseURL string
	ShareSecret   string
	ShareTTL      time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: envOr("TELEGRAM_TOKEN", ""),
		PollTimeout:   envDuration("POLL_TIMEOUT", 30*time.Second),
		ListenAddr:    envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:   envOr("METRICS_ADDR", ":9090"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "json"),
		DatabaseURL:   envOr("DATABASE_URL", ""),
		FilesRoot:     envOr("FILES_ROOT", "files"),
		SuperAdminID:  envInt64("SUPER_ADMIN_ID", 0),
		PublicBaseURL: envOr("PUBLIC_BASE_URL", "http://localhost:8080"),
		ShareSecret:   envOr("SHARE_SECRET", ""),
		ShareTTL:      envDuration("SHARE_TTL", 24*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
