package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authguard/internal/database"
	"github.com/BradenHooton/authguard/internal/models"
)

// PostgresStore is a KVStore backed by the guard_kv table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a store on a migrated database
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the value stored under key
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM guard_kv WHERE key = $1`

	var value string
	err := s.db.Pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return "", false, nil
		}
		return "", false, s.mapError("get", key, err)
	}

	return value, true, nil
}

// Set upserts value under key
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO guard_kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := s.db.Pool.Exec(ctx, query, key, value); err != nil {
		return s.mapError("set", key, err)
	}
	return nil
}

// Delete removes key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM guard_kv WHERE key = $1`

	if _, err := s.db.Pool.Exec(ctx, query, key); err != nil {
		return s.mapError("delete", key, err)
	}
	return nil
}

// PurgeStale deletes rows in namespace that have not been written for olderThan
func (s *PostgresStore) PurgeStale(ctx context.Context, namespace string, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM guard_kv WHERE key LIKE $1 AND updated_at < $2`

	cutoff := time.Now().Add(-olderThan)
	tag, err := s.db.Pool.Exec(ctx, query, Key(namespace, "%"), cutoff)
	if err != nil {
		return 0, s.mapError("purge", namespace, err)
	}
	return tag.RowsAffected(), nil
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *PostgresStore) mapError(op, key string, err error) error {
	mapped := database.MapPostgresError(err)
	if models.ClassOf(mapped) != models.ClassUnknown {
		return fmt.Errorf("%w: %s %q: %w", models.ErrStoreUnavailable, op, key, mapped)
	}
	return wrapBackendError(op, key, err)
}
