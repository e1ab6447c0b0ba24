// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"context"

	"github.com/holomush/extkit/internal/hook"
)

// StateAccess exposes single keys of the manager's store to plugin runtimes.
type StateAccess struct {
	m *Manager
}

// StateAccess returns a key-level view of the store.
func (m *Manager) StateAccess() StateAccess {
	return StateAccess{m: m}
}

// Get returns the value stored under key.
func (s StateAccess) Get(key string) (any, bool) {
	v, ok := s.m.store.GetState()[key]
	return v, ok
}

// Set merges {key: value} into the store.
func (s StateAccess) Set(ctx context.Context, key string, value any) {
	s.m.store.SetState(ctx, State{key: value})
}

// Emitter forwards plugin emissions to the manager's bus.
type Emitter struct {
	m *Manager
}

// Emitter returns a bus emitter for plugin runtimes.
func (m *Manager) Emitter() Emitter {
	return Emitter{m: m}
}

// Emit emits event synchronously.
func (e Emitter) Emit(ctx context.Context, event string, args ...any) {
	e.m.bus.Emit(ctx, hook.Event(event), args...)
}
