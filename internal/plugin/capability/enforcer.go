// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability enforces the host API grants declared in plugin
// manifests.
//
// Grants are gobwas/glob patterns with '.' as the segment separator:
//   - '*' matches a single segment: "state.write.*" matches "state.write.count"
//   - '**' matches any number of segments: "state.**" matches "state.write.count"
package capability

import (
	"slices"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capability names checked by the host API.
const (
	StateRead  = "state.read"
	StateWrite = "state.write"
	HooksEmit  = "hooks.emit"
)

// CodeInvalidGrant marks a grant that cannot be compiled.
const CodeInvalidGrant = "CAPABILITY_INVALID_GRANT"

// StateWriteKey returns the capability for writing one state key.
func StateWriteKey(key string) string {
	return StateWrite + "." + key
}

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin capabilities at runtime.
//
// Enforcer is safe for concurrent use. The zero value is ready to use.
type Enforcer struct {
	grants map[string][]compiledGrant
	mu     sync.RWMutex
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{
		grants: make(map[string][]compiledGrant),
	}
}

// SetGrants replaces a plugin's grants. Either every pattern compiles and the
// grants are replaced, or an error is returned and nothing changes.
func (e *Enforcer) SetGrants(plugin string, capabilities []string) error {
	errb := oops.In("capability").Code(CodeInvalidGrant).With("plugin", plugin)
	if plugin == "" {
		return errb.Errorf("plugin name cannot be empty")
	}

	compiled := make([]compiledGrant, len(capabilities))
	for i, pattern := range capabilities {
		if pattern == "" {
			return errb.With("index", i).Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return errb.With("index", i).With("pattern", pattern).Wrapf(err, "invalid capability pattern")
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[plugin] = compiled
	return nil
}

// RemoveGrants forgets a plugin. Unknown plugins are ignored.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// Grants returns a copy of the patterns granted to a plugin, or nil.
func (e *Enforcer) Grants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Plugins returns the sorted names of plugins with grants.
func (e *Enforcer) Plugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.grants))
	for name := range e.grants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether the plugin holds the capability. Unknown plugins and
// empty capabilities are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.ContainsFunc(e.grants[plugin], func(g compiledGrant) bool {
		return g.glob.Match(capability)
	})
}
