// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/observability"
	"github.com/holomush/extkit/internal/sdk"
	"github.com/holomush/extkit/pkg/errutil"
)

// runCmdWithArgs builds a run command with parsed args and no config file.
func runCmdWithArgs(t *testing.T, args ...string) (*bytes.Buffer, func(context.Context, *RunDeps) error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configFile = ""

	cmd := NewRunCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.ParseFlags(args))

	return out, func(ctx context.Context, deps *RunDeps) error {
		return runWithDeps(ctx, cmd, deps)
	}
}

// quietSignals never delivers a signal.
func quietSignals() (<-chan os.Signal, func()) {
	return make(chan os.Signal), func() {}
}

func TestRun_LoadsBundledPlugins(t *testing.T) {
	out, run := runCmdWithArgs(t,
		"--plugins-dir", "../../plugins",
		"--observability-addr", "127.0.0.1:0",
		"--name", "test host",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		manager *sdk.Manager
		server  ObservabilityServer
	)
	deps := &RunDeps{
		ObservabilityServerFactory: func(addr string, opts ...observability.Option) ObservabilityServer {
			server = observability.NewServer(addr, opts...)
			return server
		},
		SignalNotifier: quietSignals,
		OnReady: func(m *sdk.Manager) {
			manager = m
			defer cancel()

			greeting, ok := m.StateAccess().Get("greeting")
			assert.True(t, ok)
			assert.Equal(t, "hello, visitor 1", greeting)
			assert.True(t, m.Ready())

			resp, err := http.Get("http://" + server.Addr() + observability.PathInfo)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = resp.Body.Close() }()

			var info sdk.Info
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
			assert.Equal(t, "test host", info.Name)
			assert.Equal(t, 2, info.PluginCount)
			assert.Equal(t, 2, info.EnabledPluginCount)
		},
	}

	require.NoError(t, run(ctx, deps))
	require.NotNil(t, manager, "OnReady was not called")

	assert.Contains(t, out.String(), "extkit running")
	greeting, _ := manager.StateAccess().Get("greeting")
	assert.Equal(t, "goodbye", greeting)
	assert.False(t, manager.Ready())
}

func TestRun_StopsOnSignal(t *testing.T) {
	_, run := runCmdWithArgs(t, "--plugins-dir", t.TempDir(), "--observability-addr", "")

	sigCh := make(chan os.Signal, 1)
	stopped := false
	deps := &RunDeps{
		SignalNotifier: func() (<-chan os.Signal, func()) {
			return sigCh, func() { stopped = true }
		},
		OnReady: func(*sdk.Manager) { sigCh <- os.Interrupt },
	}

	require.NoError(t, run(context.Background(), deps))
	assert.True(t, stopped, "signal notifier should be stopped on exit")
}

func TestRun_MediumOpenFailure(t *testing.T) {
	_, run := runCmdWithArgs(t, "--plugins-dir", t.TempDir(), "--observability-addr", "")

	deps := &RunDeps{
		MediumOpener: func(context.Context, kv.Options) (kv.Medium, error) {
			return nil, errors.New("disk on fire")
		},
		SignalNotifier: quietSignals,
		OnReady:        func(*sdk.Manager) { t.Error("OnReady should not be called") },
	}

	err := run(context.Background(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestRun_InvalidConfig(t *testing.T) {
	_, run := runCmdWithArgs(t, "--log-format", "xml")

	err := run(context.Background(), &RunDeps{SignalNotifier: quietSignals})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestRun_ObservabilityStartFailure(t *testing.T) {
	_, run := runCmdWithArgs(t, "--plugins-dir", t.TempDir(), "--observability-addr", "256.0.0.1:bogus")

	var manager *sdk.Manager
	deps := &RunDeps{
		SignalNotifier: quietSignals,
		OnReady:        func(m *sdk.Manager) { manager = m },
	}

	err := run(context.Background(), deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start observability server")
	assert.Nil(t, manager)
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("cancels on error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("listener died")

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.Error(t, ctx.Err())
	})

	t.Run("returns on closed channel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns on context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		monitorServerErrors(ctx, cancel, make(chan error), "test")
	})
}

func TestShutdownContext_SurvivesParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, stop := shutdownContext(parent)
	defer stop()

	assert.NoError(t, ctx.Err())
	_, hasDeadline := ctx.Deadline()
	assert.True(t, hasDeadline)
}
