// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Aggregator AggregatorConfig
	Anchor     AnchorConfig
	Bridge     BridgeConfig
	Redis      RedisConfig
	Retry      RetryConfig
}

type AggregatorConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Slippage   float64
}

type AnchorConfig struct {
	// BaseURL overrides every anchor's advertised domain when set. Used to
	// point all payout traffic at cmd/anchorsim during local runs.
	BaseURL      string
	Timeout      time.Duration
	AuthTokenTTL time.Duration
}

type BridgeConfig struct {
	ConfirmTimeout time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Enabled  bool
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   int64
	MaxDelay     time.Duration
}

func Load() *Config {
	return &Config{
		Aggregator: AggregatorConfig{
			BaseURL:    getEnv("AGGREGATOR_BASE_URL", "https://api.1inch.dev/swap/v6.0"),
			APIKey:     getEnv("AGGREGATOR_API_KEY", ""),
			Timeout:    getDurationEnv("AGGREGATOR_TIMEOUT", 30*time.Second),
			MaxRetries: getIntEnv("AGGREGATOR_MAX_RETRIES", 3),
			Slippage:   getFloatEnv("AGGREGATOR_SLIPPAGE", 1.0),
		},
		Anchor: AnchorConfig{
			BaseURL:      getEnv("ANCHOR_BASE_URL", ""),
			Timeout:      getDurationEnv("ANCHOR_TIMEOUT", 30*time.Second),
			AuthTokenTTL: getDurationEnv("ANCHOR_AUTH_TOKEN_TTL", 15*time.Minute),
		},
		Bridge: BridgeConfig{
			ConfirmTimeout: getDurationEnv("BRIDGE_CONFIRM_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
		},
		Retry: RetryConfig{
			MaxAttempts:  getIntEnv("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getDurationEnv("RETRY_INITIAL_DELAY", 5*time.Second),
			Multiplier:   int64(getIntEnv("RETRY_BACKOFF_MULTIPLIER", 2)),
			MaxDelay:     getDurationEnv("RETRY_MAX_DELAY", 5*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
