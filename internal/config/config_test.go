package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
db:
  url: postgres://localhost/podhaven
  num_connections: 25
server:
  port: 9090
auth:
  enabled: true
fetch:
  timeout_seconds: 10
  rate_per_second: 2
crawl:
  num_workers: 4
  batch_size: 50
  poll_interval_seconds: 5
clean:
  retention_limit: 3
  delete_batch_limit: 100
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DB.URL != "postgres://localhost/podhaven" {
		t.Fatalf("unexpected db url %q", cfg.DB.URL)
	}
	if cfg.DB.NumConnections != 25 {
		t.Fatalf("expected 25 connections, got %d", cfg.DB.NumConnections)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled {
		t.Fatal("expected auth enabled")
	}
	if cfg.Crawl.NumWorkers != 4 || cfg.Crawl.BatchSize != 50 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if got := cfg.Crawl.PollInterval(); got != 5*time.Second {
		t.Fatalf("expected poll interval 5s, got %v", got)
	}
	if cfg.Clean.RetentionLimit != 3 {
		t.Fatalf("expected retention limit 3, got %d", cfg.Clean.RetentionLimit)
	}
	// Untouched sections keep their defaults.
	if cfg.Jobs.BatchSize != 100 || cfg.Jobs.PollInterval() != 60*time.Second {
		t.Fatalf("expected jobs defaults, got %+v", cfg.Jobs)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/podhaven")
	t.Setenv("PORT", "8180")
	t.Setenv("NUM_CONNECTIONS", "60")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DB.URL != "postgres://env-host/podhaven" {
		t.Fatalf("unexpected db url %q", cfg.DB.URL)
	}
	if cfg.Server.Port != 8180 {
		t.Fatalf("expected port 8180, got %d", cfg.Server.Port)
	}
	if cfg.DB.NumConnections != 60 {
		t.Fatalf("expected 60 connections, got %d", cfg.DB.NumConnections)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		DB:     DBConfig{URL: "postgres://localhost/podhaven", NumConnections: 50},
		Server: ServerConfig{Port: 8080},
		Crawl:  WorkerConfig{NumWorkers: 10, BatchSize: 100},
		Reingest: WorkerConfig{
			NumWorkers: 10, BatchSize: 100,
		},
		Jobs:  WorkerConfig{NumWorkers: 10, BatchSize: 100},
		Clean: CleanConfig{RetentionLimit: 10, DeleteBatchLimit: 1000},
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DB.URL = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero workers", func(c *Config) { c.Crawl.NumWorkers = 0 }},
		{"zero batch", func(c *Config) { c.Jobs.BatchSize = 0 }},
		{"pool too small", func(c *Config) { c.DB.NumConnections = 5 }},
		{"bad delete batch", func(c *Config) { c.Clean.DeleteBatchLimit = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
}
