package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-aggregator
stream:
  url: wss://stream.example.com/v5/public/linear
  symbols: [BTCUSDT]
database:
  timescale:
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
aggregation:
  interval_seconds: 30
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-aggregator" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-aggregator")
	}
	if cfg.Stream.URL != "wss://stream.example.com/v5/public/linear" {
		t.Errorf("Stream.URL = %q", cfg.Stream.URL)
	}
	if cfg.Aggregation.IntervalSeconds != 30 {
		t.Errorf("Aggregation.IntervalSeconds = %d, want 30", cfg.Aggregation.IntervalSeconds)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-aggregator
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-aggregator
stream:
  symbols: [BTCUSDT]
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Aggregation.IntervalSeconds != DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want %d", cfg.Aggregation.IntervalSeconds, DefaultIntervalSeconds)
	}
	if cfg.Aggregation.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("BufferCapacity = %d, want %d", cfg.Aggregation.BufferCapacity, DefaultBufferCapacity)
	}
	if cfg.Stream.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("ReconnectBaseDelay = %v, want %v", cfg.Stream.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Targets.CommissionBps != DefaultCommissionBps {
		t.Errorf("CommissionBps = %v, want %v", cfg.Targets.CommissionBps, DefaultCommissionBps)
	}
	if len(cfg.Targets.HorizonsSec) == 0 {
		t.Error("HorizonsSec should have defaults applied")
	}
	if cfg.Writers.FlushInterval != 1*time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.Writers.FlushInterval)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Instance.ID = "agg-1"
		cfg.Stream.Symbols = []string{"BTCUSDT"}
		cfg.Database.Timescale = DBConfig{
			Host: "localhost", Name: "ts", User: "u", Password: "p",
		}
		cfg.applyDefaults()
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance id", func(c *Config) { c.Instance.ID = "" }},
		{"no symbols", func(c *Config) { c.Stream.Symbols = nil }},
		{"zero interval", func(c *Config) { c.Aggregation.IntervalSeconds = 0 }},
		{"negative interval", func(c *Config) { c.Aggregation.IntervalSeconds = -30 }},
		{"bad side mode", func(c *Config) { c.Aggregation.SideMode = "guess" }},
		{"empty horizons", func(c *Config) { c.Targets.HorizonsSec = []int{} }},
		{"negative horizon", func(c *Config) { c.Targets.HorizonsSec = []int{30, -1} }},
		{"bad wall percentile", func(c *Config) { c.Book.WallPercentile = 150 }},
		{"zero batch size", func(c *Config) { c.Writers.BatchSize = -1 }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadAndValidate_MissingFile(t *testing.T) {
	_, err := LoadAndValidate("/nonexistent/path.yaml")
	if err == nil {
		t.Error("LoadAndValidate on missing file should return an error")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
