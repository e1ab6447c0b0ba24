// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extkit/internal/config"
	"github.com/holomush/extkit/internal/hook"
	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/logging"
	"github.com/holomush/extkit/internal/observability"
	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/internal/plugin/capability"
	"github.com/holomush/extkit/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/extkit/internal/plugin/lua"
	"github.com/holomush/extkit/internal/sdk"
	"github.com/holomush/extkit/internal/state"
	"github.com/holomush/extkit/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load plugins and run them until interrupted",
		Long: `Discover the plugins under the plugins directory, load them into the
Lua host, initialize the manager and serve metrics and health probes until
SIGINT or SIGTERM. Plugins are torn down dependents first on shutdown.

Editing the config file while running applies debug and log level changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())

	return cmd
}

// runWithDeps runs the manager with injectable dependencies.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cmd *cobra.Command, deps *RunDeps) (err error) {
	deps = deps.withDefaults()

	loader, err := config.NewLoader(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	logger := logging.SetDefault(logging.Options{
		Service: "extkit",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   levelVar,
		Writer:  cmd.ErrOrStderr(),
	})

	logger.Info("starting extkit",
		"config", loader.Path(),
		"plugins_dir", cfg.PluginsDir,
		"storage", cfg.Storage.Driver,
	)

	medium, err := deps.MediumOpener(ctx, kv.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Path:   cfg.Storage.Path,
	})
	if err != nil {
		return oops.In("run").With("driver", cfg.Storage.Driver).Wrapf(err, "open storage")
	}
	defer func() {
		if closeErr := kv.Close(medium); closeErr != nil {
			errutil.LogWarn(logger, "failed to close storage", closeErr)
		}
	}()

	m := sdk.New(ctx, sdk.Config{
		Name:       cfg.Name,
		Debug:      cfg.Debug,
		Persist:    cfg.Storage.Persist,
		PersistKey: cfg.Storage.PersistKey,
	}, sdk.WithMedium(medium), sdk.WithLogger(logger), sdk.WithLevel(levelVar))

	enforcer := capability.NewEnforcer()
	functions := hostfunc.New(enforcer,
		hostfunc.WithState(m.StateAccess()),
		hostfunc.WithEmitter(m.Emitter()),
		hostfunc.WithLogger(logger),
	)
	host := pluginlua.NewHost(
		pluginlua.WithFunctions(functions),
		pluginlua.WithCallTimeout(cfg.CallTimeout),
		pluginlua.WithLogger(logger),
	)
	plugins := plugin.NewManager(cfg.PluginsDir, plugin.WithLuaHost(host), plugin.WithManagerLogger(logger))
	defer func() {
		closeCtx, cancel := shutdownContext(ctx)
		defer cancel()
		if closeErr := plugins.Close(closeCtx); closeErr != nil {
			errutil.LogWarn(logger, "failed to close plugin host", closeErr)
		}
	}()

	descriptors, err := loadPlugins(ctx, plugins, enforcer, logger)
	if err != nil {
		return err
	}
	m.UpdateConfig(sdk.ConfigPatch{Plugins: descriptors})

	// Destroy runs even when Initialize fails part way.
	defer func() {
		destroyCtx, cancel := shutdownContext(ctx)
		defer cancel()
		if destroyErr := m.Destroy(destroyCtx); destroyErr != nil {
			errutil.LogError(logger, "manager teardown incomplete", destroyErr)
			if err == nil {
				err = destroyErr
			}
		}
	}()

	if err := m.Initialize(ctx); err != nil {
		return err
	}
	bindHooks(m, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Observability.Addr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr,
			observability.WithReadiness(m.Ready),
			observability.WithInfo(func() any { return m.Info() }),
			observability.WithMetrics(hook.RegisterMetrics, plugin.RegisterMetrics, state.RegisterMetrics, sdk.RegisterMetrics),
			observability.WithCollectors(m.Plugins().Collectors()...),
			observability.WithLogger(logger),
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.In("run").With("addr", cfg.Observability.Addr).Wrapf(err, "start observability server")
		}
		defer func() {
			stopCtx, stopCancel := shutdownContext(ctx)
			defer stopCancel()
			if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
				errutil.LogWarn(logger, "error stopping observability server", stopErr)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	if watchErr := loader.Watch(func(next *config.Config) { applyReload(m, next) }); watchErr != nil {
		logger.Debug("config hot reload disabled", "path", loader.Path(), "error", watchErr)
	} else {
		defer func() {
			if stopErr := loader.StopWatching(); stopErr != nil {
				errutil.LogWarn(logger, "failed to stop config watcher", stopErr)
			}
		}()
	}

	sigChan, stopSignals := deps.SignalNotifier()
	defer stopSignals()

	info := m.Info()
	logger.Info("extkit ready",
		"plugins", info.PluginCount,
		"enabled", info.EnabledPluginCount,
	)
	cmd.Println("extkit running")
	deps.OnReady(m)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	return nil
}

// loadPlugins grants every discovered plugin its manifest capabilities, then
// loads them in dependency order.
func loadPlugins(ctx context.Context, plugins *plugin.Manager, enforcer *capability.Enforcer, logger *slog.Logger) ([]plugin.Descriptor, error) {
	discovered, err := plugins.Discover(ctx)
	if err != nil {
		return nil, err
	}
	for _, dp := range discovered {
		if grantErr := enforcer.SetGrants(dp.Manifest.Name, dp.Manifest.Capabilities); grantErr != nil {
			errutil.LogWarn(logger.With("plugin", dp.Manifest.Name), "invalid capabilities, plugin gets no grants", grantErr)
		}
	}

	descriptors, err := plugins.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("plugins loaded", "discovered", len(discovered), "loaded", len(descriptors))
	return descriptors, nil
}

// bindHooks puts each enabled plugin's hooks on the manager's bus.
func bindHooks(m *sdk.Manager, logger *slog.Logger) {
	for _, d := range m.Plugins().GetEnabled() {
		if d.Hooks == nil {
			continue
		}
		if _, err := m.BindHooks(d.Name); err != nil {
			errutil.LogWarn(logger.With("plugin", d.Name), "failed to bind hooks", err)
		}
	}
}

// applyReload applies the settings that can change while running.
func applyReload(m *sdk.Manager, next *config.Config) {
	if level, err := logging.ParseLevel(next.Log.Level); err == nil {
		m.SetLogLevel(level)
	}
	debug := next.Debug
	m.UpdateConfig(sdk.ConfigPatch{Debug: &debug})
}

// shutdownContext returns a bounded context that survives cancellation of
// parent, so teardown still runs after a signal.
func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), shutdownTimeout)
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
