// Package internal holds application-level wiring: configuration and logging.
package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Oracle provider configuration
	OracleProvider       string // "gemini" or "mock"
	GeminiAPIKey         string
	GeminiModel          string
	OracleRequestTimeout time.Duration

	// Batch pacing policy
	BatchPaceDelay        time.Duration
	BatchTransientRetries int

	// Worker configuration
	WorkerConcurrency     int
	WorkerQueueSize       int
	WorkerJobTimeout      time.Duration
	WorkerShutdownTimeout time.Duration

	// Metrics endpoint authentication
	// If both are empty, /metrics is unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Oracle defaults: mock keeps local development keyless
		OracleProvider:       getEnv("ORACLE_PROVIDER", "mock"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OracleRequestTimeout: getEnvDuration("ORACLE_REQUEST_TIMEOUT", 30*time.Second),

		// Pacing matches the oracle's informal rate-limit contract
		BatchPaceDelay:        getEnvDuration("BATCH_PACE_DELAY", 800*time.Millisecond),
		BatchTransientRetries: getEnvInt("BATCH_TRANSIENT_RETRIES", 1),

		// Worker defaults
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerQueueSize:       getEnvInt("WORKER_QUEUE_SIZE", 64),
		WorkerJobTimeout:      getEnvDuration("WORKER_JOB_TIMEOUT", 30*time.Minute),
		WorkerShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Validate oracle provider configuration
	if cfg.OracleProvider == "gemini" {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when ORACLE_PROVIDER is 'gemini'")
		}
	} else if cfg.OracleProvider != "mock" {
		return nil, fmt.Errorf("ORACLE_PROVIDER must be either 'gemini' or 'mock', got: %s", cfg.OracleProvider)
	}

	if cfg.BatchTransientRetries < 0 {
		return nil, fmt.Errorf("BATCH_TRANSIENT_RETRIES must be >= 0, got: %d", cfg.BatchTransientRetries)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
