// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/observability"
	"github.com/holomush/extkit/internal/sdk"
)

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// MediumOpener opens the medium backing persisted state.
	// Default: kv.Open
	MediumOpener func(ctx context.Context, opts kv.Options) (kv.Medium, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, opts ...observability.Option) ObservabilityServer

	// SignalNotifier returns a channel of shutdown signals and a stop function.
	// Default: SIGINT and SIGTERM via signal.Notify
	SignalNotifier func() (<-chan os.Signal, func())

	// OnReady is called once the manager is initialized and hooks are bound.
	// Default: nothing
	OnReady func(m *sdk.Manager)
}

func (d *RunDeps) withDefaults() *RunDeps {
	out := RunDeps{}
	if d != nil {
		out = *d
	}
	if out.MediumOpener == nil {
		out.MediumOpener = kv.Open
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, opts...)
		}
	}
	if out.SignalNotifier == nil {
		out.SignalNotifier = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	if out.OnReady == nil {
		out.OnReady = func(*sdk.Manager) {}
	}
	return &out
}

// MigrateDeps contains injectable dependencies for the migrate commands.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: kv.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := kv.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Migrator interface wraps the methods used from kv.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}
