// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kv

import (
	"context"
	"io"

	"github.com/samber/oops"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Drivers lists every supported driver name.
func Drivers() []string {
	return []string{DriverMemory, DriverFile, DriverPostgres, DriverSQLite}
}

// Options selects and configures a medium.
type Options struct {
	// Driver is one of the Driver* names. Empty means memory.
	Driver string
	// DSN is the Postgres connection string.
	DSN string
	// Path is the directory for the file driver or the database file for
	// sqlite. Empty uses the XDG data directory.
	Path string
}

// Open builds the medium named by opts.Driver. Media holding resources also
// implement io.Closer; release them with Close.
func Open(ctx context.Context, opts Options) (Medium, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryMedium(), nil
	case DriverFile:
		m, err := NewFileMedium(opts.Path)
		if err != nil {
			return nil, err
		}
		return m, nil
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, oops.Code(CodeConnectionFailed).In("kv").
				Hint("set storage.dsn").
				Errorf("postgres driver requires a dsn")
		}
		m, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return m, nil
	case DriverSQLite:
		path := opts.Path
		if path == "" {
			var err error
			if path, err = defaultSQLitePath(); err != nil {
				return nil, err
			}
		}
		m, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, oops.Code(CodeUnknownDriver).In("kv").
			With("driver", opts.Driver).
			With("supported", Drivers()).
			Errorf("unknown storage driver %q", opts.Driver)
	}
}

// Close releases m if it holds resources.
func Close(m Medium) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // media return coded errors
	}
	return nil
}
