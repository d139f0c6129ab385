// Package store provides the Postgres connection pool and the row types
// shared across mediators.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/podhaven/crawler/internal/config"
)

// Querier is the query surface shared by a pool, a pooled connection, and a
// transaction. Mediator SQL is written against this so the same code runs
// inside and outside transactions and under pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB adds transaction support to Querier. *pgxpool.Pool, *pgxpool.Conn and
// the pgxmock pool all satisfy it.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPool builds the pgx connection pool from config and verifies it with a
// ping.
func NewPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.NumConnections > 0 {
		poolCfg.MaxConns = cfg.NumConnections
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// CheckPoolSize fails fast when a dispatcher would deadlock waiting for
// connections: every worker holds one for its lifetime and the control loop
// needs one more.
func CheckPoolSize(maxConns int32, numWorkers int) error {
	if int32(numWorkers+1) > maxConns {
		return fmt.Errorf(
			"connection pool too small: need %d connections for %d workers plus control, have %d",
			numWorkers+1, numWorkers, maxConns,
		)
	}
	return nil
}
