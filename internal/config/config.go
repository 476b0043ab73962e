// Package config loads sentinel settings from the environment.
// A .env file in the working directory is read first when present;
// real environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Observation sources for the server.
const (
	SourceSimulation = "simulation"
	SourceIngest     = "ingest"
)

// Config holds every tunable for the sentinel binaries.
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Monitoring loop
	Source       string        // simulation or ingest
	TickInterval time.Duration // simulation tick
	Seed         uint64        // scenario + confidence seed
	IncidentCap  int
	TimelineCap  int

	// Persistence and streaming (empty disables)
	DatabasePath string
	KafkaBrokers []string
	KafkaTopic   string

	// Collaborators
	AnalysisURL     string
	FeedURL         string
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:            "8000",
		LogLevel:        "info",
		Source:          SourceSimulation,
		TickInterval:    600 * time.Millisecond,
		Seed:            1,
		IncidentCap:     50,
		TimelineCap:     20,
		KafkaTopic:      "sentinel.incidents",
		AnalysisURL:     "http://localhost:8000",
		FeedURL:         "ws://localhost:8000/ws",
		PollInterval:    time.Second,
		PollMaxAttempts: 600,
	}
}

// Load reads .env (if any) and the environment on top of Default.
func Load() (Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := Default()
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Source = getEnv("SOURCE", cfg.Source)
	cfg.TickInterval = getEnvAsMillis("TICK_INTERVAL_MS", cfg.TickInterval)
	cfg.Seed = getEnvAsUint64("SCENARIO_SEED", cfg.Seed)
	cfg.IncidentCap = getEnvAsInt("INCIDENT_CAP", cfg.IncidentCap)
	cfg.TimelineCap = getEnvAsInt("TIMELINE_CAP", cfg.TimelineCap)
	cfg.DatabasePath = getEnv("DB_PATH", cfg.DatabasePath)
	cfg.KafkaBrokers = getEnvAsList("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.AnalysisURL = getEnv("ANALYSIS_URL", cfg.AnalysisURL)
	cfg.FeedURL = getEnv("FEED_URL", cfg.FeedURL)
	cfg.PollInterval = getEnvAsMillis("POLL_INTERVAL_MS", cfg.PollInterval)
	cfg.PollMaxAttempts = getEnvAsInt("POLL_MAX_ATTEMPTS", cfg.PollMaxAttempts)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Source != SourceSimulation && c.Source != SourceIngest {
		errs = append(errs, fmt.Errorf("SOURCE must be %q or %q, got %q", SourceSimulation, SourceIngest, c.Source))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL_MS must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL_MS must be positive"))
	}
	if c.IncidentCap <= 0 || c.TimelineCap <= 0 {
		errs = append(errs, errors.New("INCIDENT_CAP and TIMELINE_CAP must be positive"))
	}
	if c.PollMaxAttempts < 0 {
		errs = append(errs, errors.New("POLL_MAX_ATTEMPTS must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
