// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sdk

import (
	"maps"
	"slices"

	"github.com/holomush/extkit/internal/plugin"
)

// Config defaults.
const (
	DefaultName       = "SDK Manager"
	DefaultVersion    = "1.0.0"
	DefaultPersistKey = "extkit-state"
)

// State is the value held by the manager's store.
type State = map[string]any

// Config describes a manager. Zero fields take the defaults above.
type Config struct {
	Name    string
	Version string
	Debug   bool
	// Plugins are registered in order by Initialize.
	Plugins      []plugin.Descriptor
	InitialState State
	// Persist saves the store under PersistKey in the manager's medium.
	Persist    bool
	PersistKey string
}

// ConfigPatch carries the fields UpdateConfig should change. Nil fields are
// left alone.
type ConfigPatch struct {
	Name         *string
	Version      *string
	Debug        *bool
	Plugins      []plugin.Descriptor
	InitialState State
	Persist      *bool
	PersistKey   *string
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.InitialState == nil {
		c.InitialState = State{}
	}
	if c.PersistKey == "" {
		c.PersistKey = DefaultPersistKey
	}
	return c
}

// apply returns c with the non-nil fields of p copied over.
func (c Config) apply(p ConfigPatch) Config {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Version != nil {
		c.Version = *p.Version
	}
	if p.Debug != nil {
		c.Debug = *p.Debug
	}
	if p.Plugins != nil {
		c.Plugins = p.Plugins
	}
	if p.InitialState != nil {
		c.InitialState = p.InitialState
	}
	if p.Persist != nil {
		c.Persist = *p.Persist
	}
	if p.PersistKey != nil {
		c.PersistKey = *p.PersistKey
	}
	return c
}

// clone copies the slice and map so callers cannot alias manager state.
func (c Config) clone() Config {
	c.Plugins = slices.Clone(c.Plugins)
	c.InitialState = maps.Clone(c.InitialState)
	return c
}
