// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves XDG Base Directory paths for extkit.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "extkit"

// ConfigDir returns $XDG_CONFIG_HOME/extkit, falling back to ~/.config/extkit.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/extkit, falling back to ~/.local/share/extkit.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", ".local", "share")
}

// ConfigFile returns the default location of extkit.yaml.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "extkit.yaml"), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrapf(err, "create directory")
	}
	return nil
}

func resolve(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").In("xdg").
			With("variable", env).
			Errorf("neither %s nor HOME is set", env)
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}
