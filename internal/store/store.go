// Package store is the Task Store (C2): durable CRUD over
// tasks/projects/users backed by Postgres via pgx/v5, plus the atomic lease
// acquisition query the scheduler relies on for at-most-once-concurrent
// task execution.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a shared connection pool. It is safe for concurrent use by
// the scheduler driver and every worker job; callers never hold an
// application-level lock around a Store call. Timestamps the store writes
// itself (created_at/updated_at) come from Postgres's own now(), not a Go
// clock; the scheduler's clock.Clock governs everything time-comparison
// related (lease expiry, backoff, cron evaluation).
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-opened pool. Callers own the pool's lifetime.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses dsn, opens a pool and verifies connectivity with a bounded
// timeout, mirroring the teacher's pgxpool bootstrap.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Pool exposes the underlying pool for health checks and migrations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }
