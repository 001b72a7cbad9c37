// Package postgres provides Postgres-backed persistence for subjects,
// publications, and alerts.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the shared connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the stores use. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool connects a pgx pool using the provided config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
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

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	tax_id TEXT NOT NULL DEFAULT '',
	court_filter TEXT NOT NULL DEFAULT '',
	interval_hours INT NOT NULL DEFAULT 24,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_check_at TIMESTAMPTZ,
	next_check_at TIMESTAMPTZ NOT NULL,
	claimed_until TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS subjects_name_key ON subjects (lower(name));
CREATE INDEX IF NOT EXISTS subjects_eligibility_idx
	ON subjects (next_check_at) WHERE active;

CREATE TABLE IF NOT EXISTS publications (
	id UUID PRIMARY KEY,
	subject_id UUID NOT NULL REFERENCES subjects (id),
	court TEXT NOT NULL DEFAULT '',
	process_number TEXT NOT NULL DEFAULT '',
	availability_date TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	organ TEXT NOT NULL DEFAULT '',
	communication_type TEXT NOT NULL DEFAULT '',
	link TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS publications_subject_idx ON publications (subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS publications_created_idx ON publications (created_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id UUID PRIMARY KEY,
	subject_id UUID NOT NULL REFERENCES subjects (id),
	publication_id UUID NOT NULL REFERENCES publications (id),
	kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (publication_id, kind)
);
CREATE INDEX IF NOT EXISTS alerts_unread_idx ON alerts (created_at DESC) WHERE NOT read;
`
