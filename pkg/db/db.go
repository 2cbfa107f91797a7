// Package db opens the PostgreSQL pool backing the private value store.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accordsai/negotiation/pkg/config"
)

// PoolConfig parses dsn and applies the configured limits. A zero duration
// keeps the pgx default, as does a zero MinConns.
func PoolConfig(dsn string, opts config.PoolConfig) (*pgxpool.Config, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	if opts.MaxConns < 1 || opts.MinConns < 0 || opts.MinConns > opts.MaxConns {
		return nil, errors.New("pool needs 0 <= min_conns <= max_conns and max_conns >= 1")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(opts.MaxConns)
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	setDuration(&cfg.MaxConnLifetime, opts.MaxConnLifetime)
	setDuration(&cfg.MaxConnIdleTime, opts.MaxConnIdleTime)
	setDuration(&cfg.HealthCheckPeriod, opts.HealthCheckPeriod)
	return cfg, nil
}

func setDuration(dst *time.Duration, d time.Duration) {
	if d > 0 {
		*dst = d
	}
}

// Connect opens a pgx pool for dsn and pings it.
func Connect(ctx context.Context, dsn string, opts config.PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
