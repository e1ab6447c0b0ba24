// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc provides the extkit.* host API to Lua plugins.
//
// Functions that touch shared state or the hook bus require capability
// grants; logging and request IDs are always available.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/extkit/internal/plugin/capability"
)

// GlobalName is the Lua global holding the host API table.
const GlobalName = "extkit"

// StateAccess reads and writes top-level keys of the shared state.
type StateAccess interface {
	Get(key string) (any, bool)
	Set(ctx context.Context, key string, value any)
}

// Emitter emits named events on the hook bus.
type Emitter interface {
	Emit(ctx context.Context, event string, args ...any)
}

// Functions provides host functions to Lua plugins.
type Functions struct {
	state    StateAccess
	emitter  Emitter
	enforcer *capability.Enforcer
	logger   *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithState exposes shared state through state_get and state_set.
func WithState(s StateAccess) Option {
	return func(f *Functions) {
		f.state = s
	}
}

// WithEmitter exposes the hook bus through emit.
func WithEmitter(e Emitter) Option {
	return func(f *Functions) {
		f.emitter = e
	}
}

// WithLogger sets the logger behind extkit.log.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Functions) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates host functions. Panics if enforcer is nil.
func New(enforcer *capability.Enforcer, opts ...Option) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	f := &Functions{
		enforcer: enforcer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register installs the extkit table in a Lua state for one plugin.
func (f *Functions) Register(ls *lua.LState, pluginName string) {
	mod := ls.NewTable()

	ls.SetField(mod, "log", ls.NewFunction(f.logFn(pluginName)))
	ls.SetField(mod, "new_request_id", ls.NewFunction(newRequestIDFn))

	ls.SetField(mod, "state_get", ls.NewFunction(f.wrap(pluginName, fixed(capability.StateRead), f.stateGetFn())))
	ls.SetField(mod, "state_set", ls.NewFunction(f.wrap(pluginName, stateWriteCap, f.stateSetFn(pluginName))))
	ls.SetField(mod, "emit", ls.NewFunction(f.wrap(pluginName, fixed(capability.HooksEmit), f.emitFn(pluginName))))

	ls.SetGlobal(GlobalName, mod)
}

// capFor derives the capability a call needs from its arguments.
type capFor func(L *lua.LState) string

func fixed(name string) capFor {
	return func(*lua.LState) string { return name }
}

func stateWriteCap(L *lua.LState) string {
	return capability.StateWriteKey(L.CheckString(1))
}

func (f *Functions) wrap(plugin string, need capFor, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		capName := need(L)
		if !f.enforcer.Check(plugin, capName) {
			L.RaiseError("capability denied: %s requires %s", plugin, capName)
			return 0
		}
		return fn(L)
	}
}

func (f *Functions) logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := f.logger.With("plugin", pluginName)
		ctx := luaContext(L)
		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

func newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func (f *Functions) stateGetFn() lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if f.state == nil {
			return pushError(L, "state not available")
		}
		value, ok := f.state.Get(key)
		if !ok {
			return pushSuccess(L, lua.LNil)
		}
		return pushSuccess(L, ToLua(L, value))
	}
}

func (f *Functions) stateSetFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value := FromLua(L.CheckAny(2))
		if f.state == nil {
			L.Push(lua.LString("state not available"))
			return 1
		}
		f.state.Set(luaContext(L), key, value)
		f.logger.Debug("plugin set state", "plugin", pluginName, "key", key)
		return 0
	}
}

func (f *Functions) emitFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		event := L.CheckString(1)
		args := make([]any, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, FromLua(L.Get(i)))
		}
		if f.emitter == nil {
			L.Push(lua.LString("hook bus not available"))
			return 1
		}
		f.logger.Debug("plugin emitted event", "plugin", pluginName, "event", event)
		f.emitter.Emit(luaContext(L), event, args...)
		return 0
	}
}
