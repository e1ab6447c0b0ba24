// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extkit/internal/config"
	"github.com/holomush/extkit/internal/kv"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage migrations for the Postgres state table",
		Long: `Apply or roll back the schema used by the postgres storage driver.

The database is taken from --storage-dsn, then storage.dsn in the config
file, then the DATABASE_URL environment variable.`,
	}

	cmd.PersistentFlags().String("storage-dsn", "", "PostgreSQL connection string")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					if err := m.Down(); err != nil {
						return err
					}
				} else {
					cmd.Println("Rolling back one migration...")
					if err := m.Steps(-1); err != nil {
						return err
					}
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag without running
any migration. Use after fixing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn and
// closes the migrator.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	deps = deps.withDefaults()

	databaseURL, err := getDatabaseURL(cmd)
	if err != nil {
		return err
	}
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Schema version: %d (%s)\n", version, state)
	cmd.Printf("Applied: %d, pending: %d\n", len(applied), len(pending))
	for _, v := range pending {
		name, nameErr := kv.MigrationName(v)
		if nameErr != nil {
			name = "?"
		}
		cmd.Printf("  pending %06d %s\n", v, name)
	}
	if dirty {
		cmd.Println("The last migration failed part way; fix it and run `extkit migrate force <version>`.")
	}
	return nil
}

// getDatabaseURL resolves the database from flags, the config file or the
// DATABASE_URL environment variable.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	loader, err := config.NewLoader(configFile, cmd.Flags())
	if err != nil {
		return "", err
	}
	cfg, err := loader.Load()
	if err != nil {
		return "", err
	}
	if cfg.Storage.DSN != "" {
		return cfg.Storage.DSN, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").
		Hint("pass --storage-dsn, set storage.dsn or DATABASE_URL").
		Errorf("no database configured")
}

// parseForceVersion parses the version argument of migrate force.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	return version, nil
}
