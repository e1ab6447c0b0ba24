// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/internal/plugin/hostfunc"
)

// Compile-time interface check.
var _ plugin.Host = (*Host)(nil)

// Lua globals the host calls when a plugin defines them.
const (
	FnInitialize    = "initialize"
	FnDestroy       = "destroy"
	FnOnStateChange = "on_state_change"
	FnOnError       = "on_error"
)

// DefaultCallTimeout bounds each lifecycle call into Lua.
const DefaultCallTimeout = 5 * time.Second

// luaPlugin holds a loaded plugin's source and the globals it defines.
type luaPlugin struct {
	manifest *plugin.Manifest
	code     string
	defined  map[string]bool
}

// Host manages Lua plugins. Each call runs in a fresh sandboxed state, so Lua
// globals do not survive between calls; plugins keep data in shared state.
type Host struct {
	factory   *StateFactory
	hostFuncs *hostfunc.Functions
	timeout   time.Duration
	logger    *slog.Logger
	plugins   map[string]*luaPlugin
	mu        sync.RWMutex
	closed    bool
}

// Option configures a Host.
type Option func(*Host)

// WithFunctions installs the extkit host API in every state.
func WithFunctions(hf *hostfunc.Functions) Option {
	return func(h *Host) {
		h.hostFuncs = hf
	}
}

// WithCallTimeout sets the per-call timeout. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.timeout = d
	}
}

// WithLogger sets the host logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost creates a Lua plugin host.
func NewHost(opts ...Option) *Host {
	h := &Host{
		factory: NewStateFactory(),
		timeout: DefaultCallTimeout,
		logger:  slog.Default(),
		plugins: make(map[string]*luaPlugin),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func errs(name, operation string) oops.OopsErrorBuilder {
	return oops.In("lua").With("plugin", name).With("operation", operation)
}

// Load reads a plugin's entry script, runs it once in a throwaway state to
// check it, and records which lifecycle globals it defines.
func (h *Host) Load(ctx context.Context, manifest *plugin.Manifest, dir string) error {
	if manifest.LuaPlugin == nil {
		return errs(manifest.Name, "load").New("manifest has no lua-plugin section")
	}

	entryPath := filepath.Join(dir, manifest.LuaPlugin.Entry)
	code, err := os.ReadFile(filepath.Clean(entryPath))
	if err != nil {
		return errs(manifest.Name, "load").With("path", entryPath).Hint("failed to read entry file").Wrap(err)
	}

	L, err := h.factory.NewState(ctx)
	if err != nil {
		return errs(manifest.Name, "load").Hint("failed to create validation state").Wrap(err)
	}
	defer L.Close()

	if err := L.DoString(string(code)); err != nil {
		return errs(manifest.Name, "load").With("entry", manifest.LuaPlugin.Entry).Hint("syntax error").Wrap(err)
	}

	defined := make(map[string]bool)
	for _, fn := range []string{FnInitialize, FnDestroy, FnOnStateChange, FnOnError} {
		if L.GetGlobal(fn).Type() == lua.LTFunction {
			defined[fn] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errs(manifest.Name, "load").New("host is closed")
	}
	h.plugins[manifest.Name] = &luaPlugin{
		manifest: manifest,
		code:     string(code),
		defined:  defined,
	}
	return nil
}

// Unload removes a plugin.
func (h *Host) Unload(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.plugins[name]; !ok {
		return errs(name, "unload").New("plugin not loaded")
	}
	delete(h.plugins, name)
	return nil
}

// Descriptor returns a descriptor whose callbacks call into the plugin's Lua
// globals. Globals the script does not define leave their slot nil.
func (h *Host) Descriptor(name string) (plugin.Descriptor, bool) {
	h.mu.RLock()
	p, ok := h.plugins[name]
	h.mu.RUnlock()
	if !ok {
		return plugin.Descriptor{}, false
	}

	d := plugin.Descriptor{
		Name:         name,
		Version:      p.manifest.Version,
		Enabled:      p.manifest.IsEnabled(),
		Dependencies: p.manifest.DependencyNames(),
		Component:    p.manifest,
	}
	if p.defined[FnInitialize] {
		d.Initialize = func(ctx context.Context) error {
			return h.Call(ctx, name, FnInitialize)
		}
	}
	if p.defined[FnDestroy] {
		d.Destroy = func(ctx context.Context) error {
			return h.Call(ctx, name, FnDestroy)
		}
	}

	hooks := &plugin.Hooks{}
	if p.defined[FnOnStateChange] {
		hooks.OnStateChange = func(ctx context.Context, state, prev any) error {
			return h.Call(ctx, name, FnOnStateChange, state, prev)
		}
	}
	if p.defined[FnOnError] {
		hooks.OnError = func(ctx context.Context, err error, source string) error {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			return h.Call(ctx, name, FnOnError, msg, source)
		}
	}
	if !hooks.Empty() {
		d.Hooks = hooks
	}
	return d, true
}

// Call runs a global function of a loaded plugin in a fresh state. A missing
// global is not an error.
func (h *Host) Call(ctx context.Context, name, fn string, args ...any) error {
	h.mu.RLock()
	p, ok := h.plugins[name]
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return errs(name, fn).New("host is closed")
	}
	if !ok {
		return errs(name, fn).New("plugin not loaded")
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	L, err := h.factory.NewState(ctx)
	if err != nil {
		return errs(name, fn).Hint("failed to create state").Wrap(err)
	}
	defer L.Close()

	if h.hostFuncs != nil {
		h.hostFuncs.Register(L, name)
	}

	if err := L.DoString(p.code); err != nil {
		return errs(name, fn).Hint("failed to load code").Wrap(err)
	}

	global := L.GetGlobal(fn)
	if global.Type() != lua.LTFunction {
		h.logger.Debug("plugin does not define function", "plugin", name, "function", fn)
		return nil
	}

	luaArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		luaArgs[i] = hostfunc.ToLua(L, a)
	}

	if err := L.CallByParam(lua.P{
		Fn:      global,
		NRet:    0,
		Protect: true,
	}, luaArgs...); err != nil {
		return errs(name, fn).Wrap(err)
	}
	return nil
}

// Plugins returns the sorted names of loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down the host.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.plugins = make(map[string]*luaPlugin)
	return nil
}
