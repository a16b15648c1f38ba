package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgQuerier is the subset of *pgxpool.Pool used by PostgresBackend.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores values in a shared PostgreSQL table, partitioned by
// namespace (typically the device id).
type PostgresBackend struct {
	pool      pgQuerier
	namespace string
}

// NewPostgresBackend creates a Postgres-backed store.
func NewPostgresBackend(pool pgQuerier, namespace string) *PostgresBackend {
	return &PostgresBackend{pool: pool, namespace: namespace}
}

// EnsureSchema creates the key-value table if it does not exist.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS swrve_kv (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create swrve_kv table: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `
		SELECT value FROM swrve_kv WHERE namespace = $1 AND key = $2
	`, p.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresBackend) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO swrve_kv (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`, p.namespace, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) Remove(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM swrve_kv WHERE namespace = $1 AND key = $2
	`, p.namespace, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
