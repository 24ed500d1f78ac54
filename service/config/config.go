package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Mining configuration
	MiningDifficulty    int
	MiningMaxIterations int

	// Audit configuration
	AuditInterval time.Duration

	// Worker metrics endpoint
	MetricsAddr string
}

// Difficulty bounds. Six leading hex zeros already averages sixteen
// million attempts, far past the iteration cap, so higher settings only
// produce lower-assurance records.
const (
	MinMiningDifficulty = 0
	MaxMiningDifficulty = 6
)

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "drugledger-audit")

	// Mining configuration
	difficulty, err := parseInt("MINING_DIFFICULTY", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MiningDifficulty = difficulty
	}
	if cfg.MiningDifficulty < MinMiningDifficulty || cfg.MiningDifficulty > MaxMiningDifficulty {
		errs = append(errs, fmt.Errorf("MINING_DIFFICULTY must be between %d and %d", MinMiningDifficulty, MaxMiningDifficulty))
	}

	maxIterations, err := parseInt("MINING_MAX_ITERATIONS", 100000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MiningMaxIterations = maxIterations
	}
	if cfg.MiningMaxIterations < 1 {
		errs = append(errs, fmt.Errorf("MINING_MAX_ITERATIONS must be positive"))
	}

	// Audit configuration
	auditInterval, err := parseDuration("AUDIT_INTERVAL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AuditInterval = auditInterval
	}
	if cfg.AuditInterval < time.Minute {
		errs = append(errs, fmt.Errorf("AUDIT_INTERVAL (%v) must be at least 1 minute", cfg.AuditInterval))
	}

	// Worker metrics endpoint
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.MiningDifficulty < MinMiningDifficulty || c.MiningDifficulty > MaxMiningDifficulty {
		errs = append(errs, fmt.Errorf("MiningDifficulty must be between %d and %d", MinMiningDifficulty, MaxMiningDifficulty))
	}

	if c.MiningMaxIterations < 1 {
		errs = append(errs, fmt.Errorf("MiningMaxIterations must be positive"))
	}

	if c.AuditInterval < time.Minute {
		errs = append(errs, fmt.Errorf("AuditInterval must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
