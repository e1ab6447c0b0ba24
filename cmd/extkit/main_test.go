// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"run", "plugins", "schema", "migrate", "status"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/extkit.yaml", "--help"},
			wantFlag: "/path/to/extkit.yaml",
		},
		{
			name:     "equals form",
			args:     []string{"--config=/etc/extkit.yaml", "--help"},
			wantFlag: "/etc/extkit.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			t.Cleanup(func() { configFile = "" })

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_LongDescription(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "extkit", cmd.Use)
	assert.Contains(t, cmd.Long, "Lua plugins")
	assert.Contains(t, cmd.Long, "hook bus")
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRunCommand_Flags(t *testing.T) {
	cmd := NewRunCmd()

	for _, name := range []string{
		"name", "debug", "plugins-dir", "call-timeout", "log-level", "log-format",
		"storage-driver", "storage-dsn", "storage-path", "persist", "persist-key",
		"observability-addr",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "run missing --%s", name)
	}
}
