// Package app initializes and holds the long-lived services shared by every
// command: configuration, the logger, and the database pool.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/config"
	"github.com/podhaven/crawler/internal/fetch"
	"github.com/podhaven/crawler/internal/logging"
	"github.com/podhaven/crawler/internal/store"
)

// Options carries the command-line overrides applied on top of the loaded
// configuration.
type Options struct {
	ConfigPath     string
	Quiet          bool
	LogAsync       bool
	NumConnections int32
}

// App holds the shared services for one command invocation.
type App struct {
	Cfg      config.Config
	Log      *zap.Logger
	Pool     *pgxpool.Pool
	flushLog func()
}

// New loads configuration, builds the logger, and connects the database
// pool. It fails fast when any of those cannot be initialized.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.NumConnections > 0 {
		cfg.DB.NumConnections = opts.NumConnections
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, flush := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Quiet:       opts.Quiet,
		Async:       opts.LogAsync,
	})

	pool, err := store.NewPool(ctx, cfg.DB)
	if err != nil {
		flush()
		return nil, err
	}

	log.Info("application services initialized",
		zap.Int32("num_connections", pool.Config().MaxConns))
	return &App{Cfg: cfg, Log: log, Pool: pool, flushLog: flush}, nil
}

// Close releases the pool and flushes any buffered log output.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.flushLog != nil {
		a.flushLog()
	}
}

// Fetcher builds the shared HTTP feed fetcher from configuration.
func (a *App) Fetcher() *fetch.HTTPFetcher {
	return fetch.NewHTTPFetcher(fetch.Config{
		Timeout:       time.Duration(a.Cfg.Fetch.TimeoutSeconds) * time.Second,
		RatePerSecond: a.Cfg.Fetch.RatePerSecond,
		UserAgent:     a.Cfg.Fetch.UserAgent,
	})
}
