// Package postgres provides a PostgreSQL-backed key-value store for shared session state.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/civicwatch/civicwatch/internal/errors"
)

// DefaultTable is the session table name.
const DefaultTable = "session_kv"

// DB is the subset of *pgxpool.Pool used by KVStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// KVStore is a PostgreSQL-based ports.KeyValueStore.
type KVStore struct {
	db    DB
	table string
}

// NewKVStore creates a store over db. An empty table name uses DefaultTable.
func NewKVStore(db DB, table string) *KVStore {
	if table == "" {
		table = DefaultTable
	}
	return &KVStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the session table if it does not exist.
func (s *KVStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return apperrors.MapStorageError("ensure schema", err)
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, apperrors.ValidationField("key", "key cannot be empty")
	}

	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM `+s.table+` WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, apperrors.MapStorageError("get", err)
	}
	return v, true, nil
}

// Set upserts the value and bumps updated_at.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return apperrors.ValidationField("key", "key cannot be empty")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	return apperrors.MapStorageError("set", err)
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	return s.RemoveMany(ctx, key)
}

// RemoveMany deletes all keys in one statement.
func (s *KVStore) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE key = ANY($1)`, keys)
	return apperrors.MapStorageError("remove", err)
}
