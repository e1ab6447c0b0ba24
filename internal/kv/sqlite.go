// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kv

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"

	"github.com/samber/oops"
	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/holomush/extkit/internal/xdg"
)

// SQLiteMedium stores values in a single-file SQLite database.
type SQLiteMedium struct {
	db *sql.DB
}

// Compile-time interface check.
var _ Medium = (*SQLiteMedium)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the kv
// table exists. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code(CodeConnectionFailed).In("kv").With("path", path).Wrap(err)
	}
	// One connection keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, oops.Code(CodeMediumFailed).In("kv").With("path", path).Wrapf(err, "create kv table")
	}
	return &SQLiteMedium{db: db}, nil
}

// Get implements Medium.
func (m *SQLiteMedium) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return value, true, nil
}

// Set implements Medium.
func (m *SQLiteMedium) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return oops.Code(CodeInvalidKey).In("kv").Errorf("key cannot be empty")
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return nil
}

// Delete implements Medium.
func (m *SQLiteMedium) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return nil
}

// Close closes the database.
func (m *SQLiteMedium) Close() error {
	if err := m.db.Close(); err != nil {
		return oops.Code(CodeMediumFailed).In("kv").Wrap(err)
	}
	return nil
}

// defaultSQLitePath returns $XDG_DATA_HOME/extkit/state.db, creating the
// directory.
func defaultSQLitePath() (string, error) {
	dir, err := xdg.DataDir()
	if err != nil {
		return "", oops.Code(CodeMediumFailed).In("kv").Wrap(err)
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return "", oops.Code(CodeMediumFailed).In("kv").Wrap(err)
	}
	return filepath.Join(dir, "state.db"), nil
}
