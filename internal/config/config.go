// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads extkit.yaml and overlays command-line flags.
package config

import (
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/logging"
)

// CodeInvalid tags every validation failure.
const CodeInvalid = "CONFIG_INVALID"

// Defaults.
const (
	DefaultLogLevel          = "info"
	DefaultLogFormat         = logging.FormatJSON
	DefaultPluginsDir        = "plugins"
	DefaultPersistKey        = "extkit-state"
	DefaultObservabilityAddr = "127.0.0.1:9100"
	DefaultCallTimeout       = 5 * time.Second
)

// Config is the CLI configuration.
type Config struct {
	// Name is reported by the SDK manager. Empty keeps the manager default.
	Name          string              `koanf:"name"`
	Debug         bool                `koanf:"debug"`
	PluginsDir    string              `koanf:"plugins_dir"`
	CallTimeout   time.Duration       `koanf:"call_timeout"`
	Log           LogConfig           `koanf:"log"`
	Storage       StorageConfig       `koanf:"storage"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig selects the medium backing persisted state.
type StorageConfig struct {
	Driver     string `koanf:"driver"`
	DSN        string `koanf:"dsn"`
	Path       string `koanf:"path"`
	Persist    bool   `koanf:"persist"`
	PersistKey string `koanf:"persist_key"`
}

// ObservabilityConfig configures the metrics and health server. An empty
// Addr disables it.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the configuration used when neither file nor flags set a value.
func Default() Config {
	return Config{
		PluginsDir:  DefaultPluginsDir,
		CallTimeout: DefaultCallTimeout,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Storage: StorageConfig{
			Driver:     kv.DriverMemory,
			PersistKey: DefaultPersistKey,
		},
		Observability: ObservabilityConfig{
			Addr: DefaultObservabilityAddr,
		},
	}
}

// Validate checks the configuration for values the CLI cannot run with.
func (c *Config) Validate() error {
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", c.Log.Format).
			Hint("use json or text").
			Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level).
			Hint("use debug, info, warn or error").
			Errorf("invalid log level: %v", err)
	}
	if !slices.Contains(kv.Drivers(), c.Storage.Driver) {
		return invalid("storage.driver", c.Storage.Driver).
			With("supported", kv.Drivers()).
			Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == kv.DriverPostgres && c.Storage.DSN == "" {
		return invalid("storage.dsn", "").Errorf("postgres storage requires a dsn")
	}
	if c.Storage.Persist && c.Storage.PersistKey == "" {
		return invalid("storage.persist_key", "").Errorf("persist key is required when persist is enabled")
	}
	if c.CallTimeout < 0 {
		return invalid("call_timeout", c.CallTimeout.String()).Errorf("call timeout must not be negative")
	}
	return nil
}

func invalid(field, value string) oops.OopsErrorBuilder {
	return oops.Code(CodeInvalid).In("config").With("field", field).With("value", value)
}
