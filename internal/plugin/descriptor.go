// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"slices"
)

// Lifecycle is a plugin side effect run on enable or disable. It may block;
// the registry waits for it to return.
type Lifecycle func(ctx context.Context) error

// Hooks is an optional bundle of plugin callbacks for the host to wire onto
// its hook bus. The registry stores it but never calls it.
type Hooks struct {
	OnMount       func(ctx context.Context) error
	OnUnmount     func(ctx context.Context) error
	OnStateChange func(ctx context.Context, state, prev any) error
	OnError       func(ctx context.Context, err error, source string) error
}

// Empty reports whether no slot is set.
func (h *Hooks) Empty() bool {
	return h == nil || (h.OnMount == nil && h.OnUnmount == nil && h.OnStateChange == nil && h.OnError == nil)
}

// Descriptor describes one registrable plugin.
type Descriptor struct {
	// Name identifies the plugin within a registry.
	Name string
	// Version is informational; the registry does not compare versions.
	Version string
	// Enabled reports whether Initialize has run without a matching Destroy.
	Enabled bool
	// Dependencies names plugins that must be registered (and enabled before
	// this plugin can be enabled).
	Dependencies []string

	Initialize Lifecycle
	Destroy    Lifecycle

	// Component is an opaque value for the host, passed through untouched.
	Component any
	Hooks     *Hooks
}

// clone copies d so callers cannot reach the registry's dependency slice.
func (d Descriptor) clone() Descriptor {
	d.Dependencies = slices.Clone(d.Dependencies)
	return d
}
