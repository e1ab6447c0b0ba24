// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection retry defaults for OpenPostgres.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 200 * time.Millisecond
)

// poolIface is the subset of *pgxpool.Pool the medium uses. pgxmock pools
// satisfy it too.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresMedium stores values in the extkit_kv table.
type PostgresMedium struct {
	pool poolIface
}

// Compile-time interface check.
var _ Medium = (*PostgresMedium)(nil)

// NewPostgresMedium wraps an existing pool. The schema must already be
// migrated.
func NewPostgresMedium(pool poolIface) *PostgresMedium {
	return &PostgresMedium{pool: pool}
}

// OpenPostgres connects to dsn, retrying pool creation and the first ping
// with exponential backoff.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresMedium, error) {
	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(DefaultConnectAttempts-1, retry.NewExponential(DefaultConnectBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.New(ctx, dsn)
		if err != nil {
			// A malformed DSN will not heal by waiting.
			return err //nolint:wrapcheck // wrapped below
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code(CodeConnectionFailed).In("kv").
			With("attempts", DefaultConnectAttempts).
			Hint("check the storage dsn and that Postgres is reachable").
			Wrap(err)
	}
	return NewPostgresMedium(pool), nil
}

// Get implements Medium.
func (m *PostgresMedium) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := m.pool.QueryRow(ctx, `SELECT value FROM extkit_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pgError(err, "get", key)
	}
	return value, true, nil
}

// Set implements Medium.
func (m *PostgresMedium) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return oops.Code(CodeInvalidKey).In("kv").Errorf("key cannot be empty")
	}
	_, err := m.pool.Exec(ctx,
		`INSERT INTO extkit_kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return pgError(err, "set", key)
	}
	return nil
}

// Delete implements Medium.
func (m *PostgresMedium) Delete(ctx context.Context, key string) error {
	if _, err := m.pool.Exec(ctx, `DELETE FROM extkit_kv WHERE key = $1`, key); err != nil {
		return pgError(err, "delete", key)
	}
	return nil
}

// Ping checks the connection.
func (m *PostgresMedium) Ping(ctx context.Context) error {
	if err := m.pool.Ping(ctx); err != nil {
		return oops.Code(CodeConnectionFailed).In("kv").Wrap(err)
	}
	return nil
}

// Close releases the pool.
func (m *PostgresMedium) Close() error {
	m.pool.Close()
	return nil
}

// pgError classifies a database failure. A missing table means migrations
// were never applied.
func pgError(err error, operation, key string) error {
	builder := oops.In("kv").With("operation", operation).With("key", key)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return builder.Code(CodeSchemaMissing).
			Hint("run `extkit migrate up` before using the postgres driver").
			Wrap(err)
	}
	return builder.Code(CodeMediumFailed).Wrap(err)
}
