package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns    = 10
	defaultPingTimeout = 5 * time.Second
)

// poolConfig parses the DSN and applies the pool size. Non-positive maxConns
// keeps a small default suitable for development.
func poolConfig(dsn string, maxConns int32) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	cfg.MaxConns = maxConns
	return cfg, nil
}

// Connect establishes a connection pool sized per config and verifies
// connectivity with a bounded ping before handing it back.
func Connect(ctx context.Context, dsn string, maxConns int32, pingTimeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn, maxConns)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
