// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
)

// Host manages a specific plugin runtime type.
type Host interface {
	// Load prepares a plugin from its manifest.
	Load(ctx context.Context, manifest *Manifest, dir string) error

	// Unload tears down a plugin.
	Unload(ctx context.Context, name string) error

	// Descriptor returns a registrable descriptor whose lifecycle callbacks
	// and hooks run inside the runtime.
	Descriptor(name string) (Descriptor, bool)

	// Plugins returns names of all loaded plugins.
	Plugins() []string

	// Close shuts down the host and all plugins.
	Close(ctx context.Context) error
}
