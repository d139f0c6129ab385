// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig      `mapstructure:"db"`
	Server   ServerConfig  `mapstructure:"server"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Fetch    FetchConfig   `mapstructure:"fetch"`
	Crawl    WorkerConfig  `mapstructure:"crawl"`
	Reingest WorkerConfig  `mapstructure:"reingest"`
	Jobs     WorkerConfig  `mapstructure:"jobs"`
	Clean    CleanConfig   `mapstructure:"clean"`
	Logging  LoggingConfig `mapstructure:"logging"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	// URL is the Postgres DSN, normally supplied via DATABASE_URL.
	URL string `mapstructure:"url"`

	// NumConnections caps the connection pool size.
	NumConnections int32 `mapstructure:"num_connections"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles. When enabled, requests must
// carry a bearer secret matching a key row in the database.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FetchConfig configures the HTTP feed fetcher.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// WorkerConfig governs one dispatcher instance: its worker pool size, how
// many units of work it selects per batch, and how long it sleeps when a poll
// comes back empty.
type WorkerConfig struct {
	NumWorkers       int `mapstructure:"num_workers"`
	BatchSize        int `mapstructure:"batch_size"`
	PollIntervalSecs int `mapstructure:"poll_interval_seconds"`
}

// PollInterval returns the empty-poll sleep as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSecs) * time.Second
}

// CleanConfig bounds the retention cleaner.
type CleanConfig struct {
	// RetentionLimit is the number of feed content snapshots kept per podcast.
	RetentionLimit int64 `mapstructure:"retention_limit"`

	// DeleteBatchLimit caps rows deleted per statement.
	DeleteBatchLimit int64 `mapstructure:"delete_batch_limit"`

	PollIntervalSecs int `mapstructure:"poll_interval_seconds"`
}

// PollInterval returns the sleep between continuous cleaner runs.
func (c CleanConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// LoggingConfig selects logger behavior.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from an optional file path plus the environment
// and returns the validated Config.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("db.num_connections", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.rate_per_second", 8)
	v.SetDefault("fetch.user_agent", "podhaven-crawler/1.0 (+https://github.com/podhaven/crawler)")
	v.SetDefault("crawl.num_workers", 10)
	v.SetDefault("crawl.batch_size", 100)
	v.SetDefault("crawl.poll_interval_seconds", 60)
	v.SetDefault("reingest.num_workers", 10)
	v.SetDefault("reingest.batch_size", 100)
	v.SetDefault("reingest.poll_interval_seconds", 60)
	v.SetDefault("jobs.num_workers", 10)
	v.SetDefault("jobs.batch_size", 100)
	v.SetDefault("jobs.poll_interval_seconds", 60)
	v.SetDefault("clean.retention_limit", 10)
	v.SetDefault("clean.delete_batch_limit", 1000)
	v.SetDefault("clean.poll_interval_seconds", 60)
	v.SetDefault("logging.development", false)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The conventional deployment environment variables.
	for key, env := range map[string]string{
		"db.url":             "DATABASE_URL",
		"db.num_connections": "NUM_CONNECTIONS",
		"server.port":        "PORT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as deadlocks or
// panics deep inside a dispatcher run.
func (c Config) Validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for name, w := range map[string]WorkerConfig{
		"crawl":    c.Crawl,
		"reingest": c.Reingest,
		"jobs":     c.Jobs,
	} {
		if w.NumWorkers < 1 {
			return fmt.Errorf("%s.num_workers must be at least 1", name)
		}
		if w.BatchSize < 1 {
			return fmt.Errorf("%s.batch_size must be at least 1", name)
		}
		// Every worker holds a connection for its lifetime and the control
		// loop needs one of its own.
		if int32(w.NumWorkers+1) > c.DB.NumConnections {
			return fmt.Errorf(
				"connection pool too small: %s needs %d connections, pool has %d",
				name, w.NumWorkers+1, c.DB.NumConnections,
			)
		}
	}
	if c.Clean.RetentionLimit < 0 {
		return fmt.Errorf("clean.retention_limit must not be negative")
	}
	if c.Clean.DeleteBatchLimit < 1 {
		return fmt.Errorf("clean.delete_batch_limit must be at least 1")
	}
	return nil
}
