// Package postgres implements the hosted plan and subscription stores on
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/launchplan/internal/config"
)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if !cfg.DSN.IsSet() {
		return nil, errors.New("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN.Value())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		createStartupPlansTable,
		createStartupPlansIndex,
		createSubscriptionsTable,
	}
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

const createStartupPlansTable = `
CREATE TABLE IF NOT EXISTS startup_plans (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  idea        TEXT NOT NULL,
  "timestamp" TIMESTAMPTZ NOT NULL,
  plan_data   JSONB NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createStartupPlansIndex = `
CREATE INDEX IF NOT EXISTS idx_startup_plans_user_created
  ON startup_plans (user_id, created_at DESC);
`

const createSubscriptionsTable = `
CREATE TABLE IF NOT EXISTS subscriptions (
  user_id         TEXT PRIMARY KEY,
  tier            TEXT NOT NULL DEFAULT 'basic',
  plans_generated INTEGER NOT NULL DEFAULT 0 CHECK (plans_generated >= 0),
  reset_at        TIMESTAMPTZ NOT NULL,
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
