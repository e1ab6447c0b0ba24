// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kv

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

// Error codes for schema migrations.
const (
	CodeMigrationSource  = "KV_MIGRATION_SOURCE_FAILED"
	CodeMigrationInit    = "KV_MIGRATION_INIT_FAILED"
	CodeMigrationUp      = "KV_MIGRATION_UP_FAILED"
	CodeMigrationDown    = "KV_MIGRATION_DOWN_FAILED"
	CodeMigrationSteps   = "KV_MIGRATION_STEPS_FAILED"
	CodeMigrationVersion = "KV_MIGRATION_VERSION_FAILED"
	CodeMigrationForce   = "KV_MIGRATION_FORCE_FAILED"
	CodeMigrationClose   = "KV_MIGRATION_CLOSE_FAILED"
	CodeMigrationList    = "KV_MIGRATION_LIST_FAILED"
	CodeInvalidVersion   = "KV_INVALID_VERSION"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	versionsOnce sync.Once
	versions     []uint
	versionsErr  error
)

// migrateIface is the subset of *migrate.Migrate the Migrator uses, so tests
// can run without a database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded schema for the Postgres medium.
type Migrator struct {
	m migrateIface
}

// NewMigrator creates a Migrator for databaseURL. Both postgres:// and
// postgresql:// URLs are accepted.
func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code(CodeMigrationSource).In("kv").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code(CodeMigrationInit).In("kv").Wrap(err)
	}

	return &Migrator{m: m}, nil
}

// migrateURL rewrites libpq-style schemes to the pgx5 scheme golang-migrate
// registers for pgx/v5.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(databaseURL, scheme); found {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code(CodeMigrationUp).In("kv").Wrap(err)
	}
	return nil
}

// Down rolls back every migration, dropping the state table and its data.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code(CodeMigrationDown).In("kv").Wrap(err)
	}
	return nil
}

// Steps applies n migrations. Negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code(CodeMigrationSteps).In("kv").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the applied version and whether the last migration left
// the schema dirty. An empty database reports version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code(CodeMigrationVersion).In("kv").Wrap(err)
	}
	return version, dirty, nil
}

// Force records version as applied without running anything. It is the
// recovery path for a dirty schema after a manual fix.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code(CodeInvalidVersion).In("kv").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code(CodeMigrationForce).In("kv").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code(CodeMigrationClose).In("kv").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code(CodeMigrationClose).In("kv").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code(CodeMigrationClose).In("kv").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// PendingMigrations returns the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := migrationVersions()
	if err != nil {
		return nil, err
	}

	var pending []uint
	for _, v := range all {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// AppliedMigrations returns the applied versions, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, nil
	}
	all, err := migrationVersions()
	if err != nil {
		return nil, err
	}

	var applied []uint
	for _, v := range all {
		if v <= current {
			applied = append(applied, v)
		}
	}
	return applied, nil
}

// MigrationName returns the NNNNNN_name form of version, or "" if no
// embedded migration has that version.
func MigrationName(version uint) (string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return "", oops.Code(CodeMigrationList).In("kv").Wrap(err)
	}

	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".up.sql") {
			return strings.TrimSuffix(name, ".up.sql"), nil
		}
	}
	return "", nil
}

// migrationVersions returns a copy of the embedded versions, parsed once.
func migrationVersions() ([]uint, error) {
	versionsOnce.Do(func() {
		versions, versionsErr = loadMigrationVersions()
	})
	if versionsErr != nil {
		return nil, versionsErr
	}
	out := make([]uint, len(versions))
	copy(out, versions)
	return out, nil
}

func loadMigrationVersions() ([]uint, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, oops.Code(CodeMigrationList).In("kv").Wrap(err)
	}

	seen := make(map[uint]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(name, "%06d", &version); err != nil {
			slog.Warn("skipping migration with unexpected file name",
				"filename", name,
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		seen[version] = struct{}{}
	}

	out := make([]uint, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
