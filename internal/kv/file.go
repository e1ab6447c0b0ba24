// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kv

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/extkit/internal/xdg"
)

// FileMedium keeps one file per key in a directory.
//
// Writes go to a temporary file that is renamed into place, so readers never
// observe a partial value.
type FileMedium struct {
	dir string
	mu  sync.RWMutex
}

// Compile-time interface check.
var _ Medium = (*FileMedium)(nil)

// NewFileMedium stores values under dir, creating it if needed. An empty dir
// selects $XDG_DATA_HOME/extkit/state.
func NewFileMedium(dir string) (*FileMedium, error) {
	if dir == "" {
		data, err := xdg.DataDir()
		if err != nil {
			return nil, oops.Code(CodeMediumFailed).In("kv").Wrap(err)
		}
		dir = filepath.Join(data, "state")
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return nil, oops.Code(CodeMediumFailed).In("kv").With("dir", dir).Wrap(err)
	}
	return &FileMedium{dir: dir}, nil
}

// Dir returns the directory holding the values.
func (m *FileMedium) Dir() string {
	return m.dir
}

// Get implements Medium.
func (m *FileMedium) Get(_ context.Context, key string) (string, bool, error) {
	path, err := m.path(key)
	if err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(path) //nolint:gosec // path is escaped under m.dir
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return string(data), true, nil
}

// Set implements Medium.
func (m *FileMedium) Set(_ context.Context, key, value string) error {
	path, err := m.path(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tmp, err := os.CreateTemp(m.dir, ".tmp-*")
	if err != nil {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return nil
}

// Delete implements Medium.
func (m *FileMedium) Delete(_ context.Context, key string) error {
	path, err := m.path(key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code(CodeMediumFailed).In("kv").With("key", key).Wrap(err)
	}
	return nil
}

// path maps key to a file name inside m.dir. Keys are path-escaped so
// separators cannot leave the directory.
func (m *FileMedium) path(key string) (string, error) {
	switch key {
	case "", ".", "..":
		return "", oops.Code(CodeInvalidKey).In("kv").With("key", key).Errorf("invalid key %q", key)
	}
	name := url.PathEscape(key)
	if name[0] == '.' {
		// Leading dots are reserved for temporary files.
		name = "%2E" + name[1:]
	}
	return filepath.Join(m.dir, name), nil
}
