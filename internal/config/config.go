// Package config loads the ambient bootstrap knobs an orchestrator
// deployment needs before it can construct providers, limiter rules,
// and breaker defaults: logging, tracing export, AWS region, and the
// reliability-stack defaults. The orchestrator core
// itself never reads the environment; this package is the
// "external config loader" that feeds it.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/coreroute/orchestrator/internal/breaker"
	"github.com/coreroute/orchestrator/internal/registry"
	"github.com/coreroute/orchestrator/internal/retry"
)

// Config holds every ambient knob plus the reliability-stack defaults
// consumed by the orchestrator's config schema.
type Config struct {
	LogLevel     string
	OTLPEndpoint string
	AWSRegion    string

	SecretsProvider string // "env" | "aws"

	ProviderPolicy registry.Policy
	Retry          retry.Config
	Breaker        breaker.Config

	ShutdownTimeout time.Duration
}

// Load reads the ambient environment into a Config, applying the
// sensible defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:    getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:       getEnv("AWS_REGION", ""),
		SecretsProvider: getEnv("SECRETS_PROVIDER", "env"),
		ProviderPolicy:  registry.Policy(getEnv("PROVIDER_POLICY", string(registry.PolicyFirst))),
		Retry: retry.Config{
			MaxAttempts: getIntEnv("RETRY_MAX_ATTEMPTS", 3),
			BaseMs:      getInt64Env("RETRY_BASE_MS", 1000),
			MaxMs:       getInt64Env("RETRY_MAX_MS", 10_000),
			Jitter:      retry.JitterFull,
		},
		Breaker: breaker.Config{
			FailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
			OpenDurationMs:   getInt64Env("BREAKER_OPEN_DURATION_MS", 30_000),
			HalfOpenProbes:   getIntEnv("BREAKER_HALF_OPEN_PROBES", 1),
		},
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
