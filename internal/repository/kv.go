// Package repository provides database/sql implementations of the secure
// store. The same SQL runs on PostgreSQL and SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/atinyakov/GophLock/internal/models"
	"github.com/atinyakov/GophLock/internal/store"
)

// SQLStore implements store.Store on the secure_items table.
type SQLStore struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewSQLStore creates a new SQLStore using the provided *sql.DB.
// db must already carry the secure_items schema (see db.InitPostgres and
// db.InitSQLite).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM secure_items WHERE key = $1`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap("get", key, err)
	}
	return value, true, nil
}

// Set inserts key or replaces its value.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO secure_items (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, value, time.Now().Unix())
	return store.Wrap("set", key, err)
}

// Delete removes key; a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM secure_items WHERE key = $1`,
		key,
	)
	return store.Wrap("delete", key, err)
}

// ClearExpiredLockout removes the retry counter and lockout timestamp in one
// transaction when the stored lockout lies before now. It reports whether
// anything was cleared.
func (s *SQLStore) ClearExpiredLockout(ctx context.Context, now time.Time) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM secure_items WHERE key = $1`,
		models.LockoutKey,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lockout: %w", err)
	}

	// an unparsable timestamp is cleared like an expired one
	until, err := strconv.ParseInt(raw, 10, 64)
	if err == nil && now.UnixMilli() < until {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM secure_items WHERE key = $1`, models.LockoutKey); err != nil {
		return false, fmt.Errorf("delete lockout: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM secure_items WHERE key = $1`, models.RetryAttemptsKey); err != nil {
		return false, fmt.Errorf("delete attempts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
