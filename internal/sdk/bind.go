// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"context"
	"sync"

	"github.com/holomush/extkit/internal/hook"
	"github.com/holomush/extkit/internal/plugin"
)

// BindHooks subscribes the Hooks bundle of the named plugin to the bus:
// OnMount to AfterMount, OnUnmount to BeforeUnmount, OnStateChange to
// StateChange and OnError to Error. Callbacks are skipped while the plugin
// is disabled or unregistered. Binding again replaces the earlier binding.
//
// The returned function removes the binding and may be called more than once.
func (m *Manager) BindHooks(name string) (unbind func(), err error) {
	d, ok := m.registry.Get(name)
	if !ok {
		return nil, plugin.ErrNotFound(name)
	}

	m.UnbindHooks(name)

	var subs []*hook.Subscription
	if h := d.Hooks; h != nil && !h.Empty() {
		on := func(event hook.Event, cb hook.Callback) {
			subs = append(subs, m.bus.On(event, m.whileEnabled(name, cb)))
		}
		if h.OnMount != nil {
			on(hook.AfterMount, func(ctx context.Context, _ ...any) error {
				return h.OnMount(ctx)
			})
		}
		if h.OnUnmount != nil {
			on(hook.BeforeUnmount, func(ctx context.Context, _ ...any) error {
				return h.OnUnmount(ctx)
			})
		}
		if h.OnStateChange != nil {
			on(hook.StateChange, func(ctx context.Context, args ...any) error {
				var next, prev any
				if len(args) > 0 {
					next = args[0]
				}
				if len(args) > 1 {
					prev = args[1]
				}
				return h.OnStateChange(ctx, next, prev)
			})
		}
		if h.OnError != nil {
			on(hook.Error, func(ctx context.Context, args ...any) error {
				source, cause := hook.ErrorArgs(args)
				return h.OnError(ctx, cause, string(source))
			})
		}
	}

	m.mu.Lock()
	m.bindings[name] = subs
	m.mu.Unlock()

	m.logger.Debug("plugin hooks bound", "plugin", name, "hooks", len(subs))

	var once sync.Once
	return func() {
		once.Do(func() { m.unbind(name, subs) })
	}, nil
}

// UnbindHooks removes any binding made by BindHooks for name.
func (m *Manager) UnbindHooks(name string) {
	m.mu.RLock()
	subs := m.bindings[name]
	m.mu.RUnlock()
	m.unbind(name, subs)
}

// unbind removes subs and forgets them if they are still the current binding.
func (m *Manager) unbind(name string, subs []*hook.Subscription) {
	for _, s := range subs {
		s.Unsubscribe()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.bindings[name]; ok && sameBinding(current, subs) {
		delete(m.bindings, name)
	}
}

func sameBinding(a, b []*hook.Subscription) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return a[0] == b[0]
}

func (m *Manager) whileEnabled(name string, cb hook.Callback) hook.Callback {
	return func(ctx context.Context, args ...any) error {
		if d, ok := m.registry.Get(name); !ok || !d.Enabled {
			return nil
		}
		return cb(ctx, args...)
	}
}
