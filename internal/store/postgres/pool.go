// Package postgres provides the PostgreSQL-backed implementations of the
// record, run and channel stores, all sharing one pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns       = 10
	defaultMinConns       = 2
	defaultConnLifetime   = 30 * time.Minute
	defaultPingMaxElapsed = 30 * time.Second
)

// PoolOption configures the connection pool.
type PoolOption func(*pgxpool.Config)

// WithMaxConns sets the maximum pool size.
func WithMaxConns(n int32) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConns = n
	}
}

// WithMinConns sets the minimum number of idle connections kept open.
func WithMinConns(n int32) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.MinConns = n
	}
}

// WithConnLifetime sets the maximum lifetime of a pooled connection.
func WithConnLifetime(d time.Duration) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConnLifetime = d
	}
}

// Connect creates a connection pool and verifies it with a ping, retrying
// with exponential backoff so the service survives a database that is still
// starting up.
func Connect(ctx context.Context, connStr string, opts ...PoolOption) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MinConns = defaultMinConns
	poolConfig.MaxConnLifetime = defaultConnLifetime

	for _, opt := range opts {
		opt(poolConfig)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	ping := func() (struct{}, error) {
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("Database not reachable yet, retrying", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	if _, err := backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(defaultPingMaxElapsed),
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection pool created",
		"max_conns", poolConfig.MaxConns,
		"min_conns", poolConfig.MinConns)
	return pool, nil
}
