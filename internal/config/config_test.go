// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/pkg/errutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "plugins", cfg.PluginsDir)
	assert.Equal(t, kv.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "extkit-state", cfg.Storage.PersistKey)
	assert.Equal(t, "127.0.0.1:9100", cfg.Observability.Addr)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = kv.DriverPostgres }, "storage.dsn"},
		{"persist without key", func(c *Config) {
			c.Storage.Persist = true
			c.Storage.PersistKey = ""
		}, "storage.persist_key"},
		{"negative timeout", func(c *Config) { c.CallTimeout = -time.Second }, "call_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, CodeInvalid)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestConfig_ValidateAcceptsVariants(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "text"
	cfg.Log.Level = "DEBUG"
	cfg.Storage.Driver = kv.DriverPostgres
	cfg.Storage.DSN = "postgres://localhost/extkit"
	cfg.Storage.PersistKey = ""
	cfg.CallTimeout = 0

	assert.NoError(t, cfg.Validate(), "an empty persist key is fine while persistence is off")
}
