package config

import (
	"reflect"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SOURCE", SourceIngest)
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("SCENARIO_SEED", "42")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("POLL_MAX_ATTEMPTS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.Source != SourceIngest {
		t.Errorf("Source = %q, want ingest", cfg.Source)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("TickInterval = %v, want 250ms", cfg.TickInterval)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if want := []string{"a:9092", "b:9092"}; !reflect.DeepEqual(cfg.KafkaBrokers, want) {
		t.Errorf("KafkaBrokers = %v, want %v", cfg.KafkaBrokers, want)
	}
	if cfg.PollMaxAttempts != 10 {
		t.Errorf("PollMaxAttempts = %d, want 10", cfg.PollMaxAttempts)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("INCIDENT_CAP", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IncidentCap != 50 {
		t.Errorf("IncidentCap = %d, want default 50", cfg.IncidentCap)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source = "camera" }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"zero incident cap", func(c *Config) { c.IncidentCap = 0 }},
		{"negative attempts", func(c *Config) { c.PollMaxAttempts = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
