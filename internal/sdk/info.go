// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"github.com/holomush/extkit/internal/hook"
)

// Info is a point-in-time summary of a Manager.
type Info struct {
	Name               string       `json:"name"`
	Version            string       `json:"version"`
	Initialized        bool         `json:"initialized"`
	Destroyed          bool         `json:"destroyed"`
	PluginCount        int          `json:"plugin_count"`
	EnabledPluginCount int          `json:"enabled_plugin_count"`
	ListenerCount      int          `json:"listener_count"`
	Hooks              []hook.Event `json:"hooks"`
}

// Info reports the manager's current state.
func (m *Manager) Info() Info {
	m.mu.RLock()
	info := Info{
		Name:        m.cfg.Name,
		Version:     m.cfg.Version,
		Initialized: m.initialized,
		Destroyed:   m.destroyed,
	}
	m.mu.RUnlock()

	info.PluginCount = m.registry.Len()
	info.EnabledPluginCount = len(m.registry.GetEnabled())
	info.ListenerCount = m.store.ListenerCount()
	info.Hooks = m.bus.RegisteredHooks()
	return info
}

// Ready reports whether the manager is initialized and not destroyed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && !m.destroyed
}
