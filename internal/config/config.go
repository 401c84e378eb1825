package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port             string
	RedisURL         string // empty disables the cross-host bridge
	GatewaySuccess   float64
	GatewayLatency   time.Duration
	EventHistorySize int
}

// Load reads configuration from the environment, with a .env file as
// fallback when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	successRate := getEnvFloat("GATEWAY_SUCCESS_RATE", 0.9)
	latencyMs := getEnvInt("GATEWAY_LATENCY_MS", 2000)
	historySize := getEnvInt("EVENT_HISTORY_SIZE", 10)

	if successRate < 0 || successRate > 1 {
		return nil, fmt.Errorf("GATEWAY_SUCCESS_RATE must be between 0 and 1, got %v", successRate)
	}
	if latencyMs < 0 {
		return nil, fmt.Errorf("GATEWAY_LATENCY_MS must not be negative, got %d", latencyMs)
	}

	return &Config{
		Port:             port,
		RedisURL:         redisURL,
		GatewaySuccess:   successRate,
		GatewayLatency:   time.Duration(latencyMs) * time.Millisecond,
		EventHistorySize: historySize,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
