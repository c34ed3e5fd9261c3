package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Readiness reports whether the pool can reach the database.
type Readiness struct {
	pool *pgxpool.Pool
}

// NewReadiness wraps a pool for health checks.
func NewReadiness(pool *pgxpool.Pool) *Readiness {
	return &Readiness{pool: pool}
}

// Check pings the database with a short timeout.
func (r *Readiness) Check(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("platform/db: pool not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}
