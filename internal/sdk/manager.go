// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sdk coordinates a plugin registry, a reactive state store and a
// lifecycle hook bus behind one Manager.
//
// A Manager moves through three states: constructed, initialized and
// destroyed. Initialize registers the configured plugins and may be called
// once; Destroy tears everything down and is terminal. Store changes are
// re-emitted on the bus as hook.StateChange with (next, prev) arguments.
package sdk

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/holomush/extkit/internal/hook"
	"github.com/holomush/extkit/internal/kv"
	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/internal/state"
	"github.com/holomush/extkit/pkg/errutil"
)

// Manager owns one registry, one store and one bus.
//
// All methods are safe for concurrent use. Plugin callbacks and hook
// callbacks run without any manager lock held.
type Manager struct {
	registry *plugin.Registry
	store    *state.Store[State]
	bus      *hook.Bus
	medium   kv.Medium
	logger   *slog.Logger
	level    *slog.LevelVar

	cfg          Config
	baseLevel    slog.Level
	initializing bool
	initialized  bool
	destroying   bool
	destroyed    bool
	bindings     map[string][]*hook.Subscription
	mu           sync.RWMutex
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	medium       kv.Medium
	codec        state.Codec
	logger       *slog.Logger
	level        *slog.LevelVar
	registryOpts []plugin.RegistryOption
}

// WithMedium sets the medium used when Config.Persist is true. Defaults to
// an in-memory medium.
func WithMedium(m kv.Medium) Option {
	return func(o *options) {
		o.medium = m
	}
}

// WithCodec sets the codec for persisted state. Defaults to JSON.
func WithCodec(c state.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithLogger sets the logger shared by the manager, its registry, store and bus.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLevel lets the Debug flag lower lv to slog.LevelDebug while set.
func WithLevel(lv *slog.LevelVar) Option {
	return func(o *options) {
		o.level = lv
	}
}

// WithRegistryOptions passes options through to the plugin registry.
func WithRegistryOptions(opts ...plugin.RegistryOption) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, opts...)
	}
}

// New builds a Manager from cfg. With cfg.Persist, the store is hydrated
// from the medium during construction.
func New(ctx context.Context, cfg Config, opts ...Option) *Manager {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.medium == nil {
		o.medium = kv.NewMemoryMedium()
	}

	cfg = cfg.withDefaults()
	logger := o.logger.With("sdk", cfg.Name)

	storeOpts := []state.Option[State]{state.WithLogger[State](logger)}
	if cfg.Persist {
		storeOpts = append(storeOpts, state.WithPersistence[State](o.medium, cfg.PersistKey))
	}
	if o.codec != nil {
		storeOpts = append(storeOpts, state.WithCodec[State](o.codec))
	}

	m := &Manager{
		registry: plugin.NewRegistry(append([]plugin.RegistryOption{plugin.WithRegistryLogger(logger)}, o.registryOpts...)...),
		store:    state.New(ctx, cfg.InitialState, storeOpts...),
		bus:      hook.New(hook.WithDebug(cfg.Debug), hook.WithLogger(logger)),
		medium:   o.medium,
		logger:   logger,
		level:    o.level,
		cfg:      cfg,
		bindings: make(map[string][]*hook.Subscription),
	}
	if m.level != nil {
		m.baseLevel = m.level.Level()
	}
	m.applyDebug(cfg.Debug)

	emitCtx := context.WithoutCancel(ctx)
	m.store.Subscribe(func(next, prev State) {
		m.bus.Emit(emitCtx, hook.StateChange, next, prev)
	})
	m.bus.On(hook.Error, m.logError)
	return m
}

// logError is the manager's own Error listener.
func (m *Manager) logError(_ context.Context, args ...any) error {
	if !m.bus.DebugMode() {
		return nil
	}
	source, cause := hook.ErrorArgs(args)
	errutil.LogError(m.logger.With("source", string(source)), "sdk error", cause)
	return nil
}

// Initialize emits BeforeMount, registers every configured plugin in order
// and emits AfterMount. The first registration failure aborts the call.
func (m *Manager) Initialize(ctx context.Context) (err error) {
	m.mu.Lock()
	switch {
	case m.destroyed || m.destroying:
		m.mu.Unlock()
		return ErrDestroyed()
	case m.initialized || m.initializing:
		m.mu.Unlock()
		return ErrAlreadyInitialized()
	}
	m.initializing = true
	plugins := slices.Clone(m.cfg.Plugins)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
		recordLifecycle("initialize", err)
	}()

	<-m.bus.EmitAsync(ctx, hook.BeforeMount)

	for _, d := range plugins {
		if regErr := m.registry.Register(ctx, d); regErr != nil {
			err = classify(CodeInitializationFailed, ContextInitialization, regErr)
			m.bus.Emit(ctx, hook.Error, err, ContextInitialization)
			return err
		}
	}

	m.mu.Lock()
	if m.destroyed || m.destroying {
		m.mu.Unlock()
		return ErrDestroyed()
	}
	m.initialized = true
	m.mu.Unlock()

	m.logger.Info("sdk initialized", "plugins", len(plugins))
	<-m.bus.EmitAsync(ctx, hook.AfterMount)
	return nil
}

// Destroy disables and unregisters every plugin, dependents first, then
// clears the store listeners and the bus. It always completes; plugins
// whose Destroy failed even under ForceDisable are reported together as
// DESTRUCTION_FAILED. Destroying twice is a no-op.
func (m *Manager) Destroy(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.destroyed || m.destroying {
		m.mu.Unlock()
		return nil
	}
	m.destroying = true
	m.mu.Unlock()
	defer func() { recordLifecycle("destroy", err) }()

	<-m.bus.EmitAsync(ctx, hook.BeforeUnmount)

	order := m.registry.DestroyOrder()
	var failures []error
	var failed []string
	for _, name := range order {
		d, ok := m.registry.Get(name)
		if !ok || !d.Enabled {
			continue
		}
		if disableErr := m.registry.Disable(ctx, name); disableErr != nil {
			errutil.LogWarn(m.logger.With("plugin", name), "disable failed, forcing", disableErr)
			if forceErr := m.registry.ForceDisable(ctx, name); forceErr != nil {
				failures = append(failures, forceErr)
				failed = append(failed, name)
			}
		}
	}
	for _, name := range order {
		if unregErr := m.registry.Unregister(ctx, name); unregErr != nil {
			errutil.LogWarn(m.logger.With("plugin", name), "unregister failed", unregErr)
		}
	}

	if len(failures) > 0 {
		// Formatted, not wrapped: oops reports the innermost code.
		err = errs().Code(CodeDestructionFailed).
			With("plugins", failed).
			Errorf("%d plugin(s) failed to destroy: %v", len(failures), errors.Join(failures...))
		m.bus.Emit(ctx, hook.Error, err, ContextDestruction)
	}

	m.store.ClearListeners()
	m.bus.Clear()

	m.mu.Lock()
	m.bindings = make(map[string][]*hook.Subscription)
	m.destroyed = true
	m.destroying = false
	m.initialized = false
	m.mu.Unlock()

	m.logger.Info("sdk destroyed", "plugins", len(order), "failures", len(failures))
	<-m.bus.EmitAsync(ctx, hook.AfterUnmount)
	return err
}

// Reset restores the initial state, then cycles every enabled plugin:
// disabled dependents first, re-enabled dependencies first.
func (m *Manager) Reset(ctx context.Context) (err error) {
	m.mu.RLock()
	initialized := m.initialized
	m.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized()
	}
	defer func() { recordLifecycle("reset", err) }()

	m.store.Reset(ctx)

	var enabled []string
	for _, name := range m.registry.DestroyOrder() {
		if d, ok := m.registry.Get(name); ok && d.Enabled {
			enabled = append(enabled, name)
		}
	}

	for _, name := range enabled {
		if disableErr := m.registry.Disable(ctx, name); disableErr != nil {
			return m.resetFailed(ctx, disableErr)
		}
	}
	for _, name := range slices.Backward(enabled) {
		if enableErr := m.registry.Enable(ctx, name); enableErr != nil {
			return m.resetFailed(ctx, enableErr)
		}
	}

	m.logger.Info("sdk reset", "plugins", len(enabled))
	return nil
}

func (m *Manager) resetFailed(ctx context.Context, cause error) error {
	err := classify(CodeResetFailed, ContextReset, cause)
	m.bus.Emit(ctx, hook.Error, err, ContextReset)
	return err
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// UpdateConfig merges patch into the configuration. Only Debug takes effect
// immediately; the other fields are read by later Initialize calls or are
// informational.
func (m *Manager) UpdateConfig(patch ConfigPatch) {
	m.mu.Lock()
	prev := m.cfg.Debug
	m.cfg = m.cfg.apply(patch)
	debug := m.cfg.Debug
	m.mu.Unlock()

	if debug != prev {
		m.applyDebug(debug)
		m.logger.Info("sdk debug mode changed", "debug", debug)
	}
}

// SetLogLevel changes the level restored when debug mode is off. While debug
// is on the shared level stays at slog.LevelDebug. Without WithLevel this is
// a no-op.
func (m *Manager) SetLogLevel(level slog.Level) {
	if m.level == nil {
		return
	}
	m.mu.Lock()
	m.baseLevel = level
	debug := m.cfg.Debug
	m.mu.Unlock()
	m.applyDebug(debug)
}

func (m *Manager) applyDebug(debug bool) {
	m.bus.SetDebugMode(debug)
	if m.level == nil {
		return
	}
	if debug {
		m.level.Set(slog.LevelDebug)
		return
	}
	m.mu.RLock()
	base := m.baseLevel
	m.mu.RUnlock()
	m.level.Set(base)
}

// State returns the manager's store.
func (m *Manager) State() *state.Store[State] {
	return m.store
}

// Hooks returns the manager's bus.
func (m *Manager) Hooks() *hook.Bus {
	return m.bus
}

// Plugins returns the manager's registry.
func (m *Manager) Plugins() *plugin.Registry {
	return m.registry
}

// Medium returns the medium backing persisted state.
func (m *Manager) Medium() kv.Medium {
	return m.medium
}
