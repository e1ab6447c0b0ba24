// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeInvalidPattern is returned by Find for a malformed glob.
const CodeInvalidPattern = "PLUGIN_INVALID_PATTERN"

// Registry tracks plugin descriptors, their dependency graph, and their
// enabled state.
//
// Locks guard the maps only. Initialize and Destroy run with no lock held, so
// a lifecycle callback may call back into the registry. Lifecycle operations
// on the same plugin are expected to be sequenced by the caller.
type Registry struct {
	plugins    map[string]*Descriptor
	order      []string
	dependents map[string]map[string]struct{}
	forward    bool
	logger     *slog.Logger
	mu         sync.RWMutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for lifecycle messages.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithForwardReferences lets Register accept dependencies that are not yet
// registered. Cycle detection still covers them, and Enable still requires
// every dependency to be registered and enabled.
func WithForwardReferences() RegistryOption {
	return func(r *Registry) {
		r.forward = true
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins:    make(map[string]*Descriptor),
		dependents: make(map[string]map[string]struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds d to the registry. If d is enabled, its Initialize runs after
// the descriptor is stored. An Initialize failure is reported with
// PLUGIN_REGISTRATION_FAILED, and the plugin stays registered but disabled.
func (r *Registry) Register(ctx context.Context, d Descriptor) error {
	d = d.clone()

	r.mu.Lock()
	if err := r.checkRegister(d); err != nil {
		r.mu.Unlock()
		recordOperation("register", ResultRejected)
		return err
	}
	stored := d
	r.plugins[d.Name] = &stored
	r.order = append(r.order, d.Name)
	for _, dep := range d.Dependencies {
		set, ok := r.dependents[dep]
		if !ok {
			set = make(map[string]struct{})
			r.dependents[dep] = set
		}
		set[d.Name] = struct{}{}
	}
	r.mu.Unlock()

	r.logger.Debug("plugin registered",
		"plugin", d.Name,
		"version", d.Version,
		"dependencies", d.Dependencies,
		"enabled", d.Enabled)

	if d.Enabled && d.Initialize != nil {
		if err := call(ctx, d.Initialize); err != nil {
			r.setEnabled(&stored, false)
			recordOperation("register", ResultFailed)
			return lifecycleError(CodeRegistrationFailed, d.Name, "initialize", err)
		}
	}
	recordOperation("register", ResultSuccess)
	return nil
}

// checkRegister validates d against the current graph. Caller holds r.mu.
func (r *Registry) checkRegister(d Descriptor) error {
	if d.Name == "" {
		return errs().Code(CodeInvalidManifest).Errorf("plugin name is required")
	}
	if _, ok := r.plugins[d.Name]; ok {
		return ErrAlreadyExists(d.Name)
	}
	if !r.forward {
		for _, dep := range d.Dependencies {
			if _, ok := r.plugins[dep]; !ok {
				return ErrDependencyNotFound(d.Name, dep)
			}
		}
	}
	if cycle := r.findCycle(d); cycle != nil {
		return ErrCircularDependency(d.Name, cycle)
	}
	return nil
}

// findCycle walks the graph from the candidate and returns the first cycle
// found, or nil. The registered graph is acyclic, so any new cycle passes
// through the candidate. Caller holds r.mu.
func (r *Registry) findCycle(candidate Descriptor) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var path []string

	edges := func(name string) []string {
		if name == candidate.Name {
			return candidate.Dependencies
		}
		if p, ok := r.plugins[name]; ok {
			return p.Dependencies
		}
		return nil
	}

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		path = append(path, name)
		for _, dep := range edges(name) {
			switch color[dep] {
			case gray:
				i := slices.Index(path, dep)
				return append(slices.Clone(path[i:]), dep)
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		color[name] = black
		path = path[:len(path)-1]
		return nil
	}
	return visit(candidate.Name)
}

// Unregister removes a plugin. An enabled plugin's Destroy runs first; if it
// fails the plugin stays registered and enabled.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	if !ok {
		r.mu.RUnlock()
		recordOperation("unregister", ResultRejected)
		return ErrNotFound(name)
	}
	if deps := r.registeredDependents(name); len(deps) > 0 {
		r.mu.RUnlock()
		recordOperation("unregister", ResultRejected)
		return ErrHasDependents(name, deps)
	}
	enabled, destroy := p.Enabled, p.Destroy
	r.mu.RUnlock()

	if enabled && destroy != nil {
		if err := call(ctx, destroy); err != nil {
			recordOperation("unregister", ResultFailed)
			return lifecycleError(CodeUnregistrationFailed, name, "destroy", err)
		}
	}

	r.mu.Lock()
	if current, ok := r.plugins[name]; ok && current == p {
		r.remove(p)
	}
	r.mu.Unlock()

	r.logger.Debug("plugin unregistered", "plugin", name)
	recordOperation("unregister", ResultSuccess)
	return nil
}

// remove drops p and its edges. Caller holds r.mu for writing.
func (r *Registry) remove(p *Descriptor) {
	delete(r.plugins, p.Name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == p.Name })
	for _, dep := range p.Dependencies {
		if set, ok := r.dependents[dep]; ok {
			delete(set, p.Name)
			if len(set) == 0 {
				delete(r.dependents, dep)
			}
		}
	}
	if len(r.dependents[p.Name]) == 0 {
		delete(r.dependents, p.Name)
	}
}

// Enable runs a disabled plugin's Initialize and marks it enabled. Enabling
// an enabled plugin is a no-op.
func (r *Registry) Enable(ctx context.Context, name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	if !ok {
		r.mu.RUnlock()
		recordOperation("enable", ResultRejected)
		return ErrNotFound(name)
	}
	if p.Enabled {
		r.mu.RUnlock()
		return nil
	}
	for _, dep := range p.Dependencies {
		if dp, ok := r.plugins[dep]; !ok || !dp.Enabled {
			r.mu.RUnlock()
			recordOperation("enable", ResultRejected)
			return ErrDependencyNotEnabled(name, dep)
		}
	}
	initialize := p.Initialize
	r.mu.RUnlock()

	if initialize != nil {
		if err := call(ctx, initialize); err != nil {
			recordOperation("enable", ResultFailed)
			return lifecycleError(CodeEnableFailed, name, "initialize", err)
		}
	}

	r.setEnabled(p, true)
	r.logger.Debug("plugin enabled", "plugin", name)
	recordOperation("enable", ResultSuccess)
	return nil
}

// Disable runs an enabled plugin's Destroy and marks it disabled. Disabling
// a disabled plugin is a no-op.
func (r *Registry) Disable(ctx context.Context, name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	if !ok {
		r.mu.RUnlock()
		recordOperation("disable", ResultRejected)
		return ErrNotFound(name)
	}
	if !p.Enabled {
		r.mu.RUnlock()
		return nil
	}
	var enabledDeps []string
	for _, dependent := range r.registeredDependents(name) {
		if r.plugins[dependent].Enabled {
			enabledDeps = append(enabledDeps, dependent)
		}
	}
	if len(enabledDeps) > 0 {
		r.mu.RUnlock()
		recordOperation("disable", ResultRejected)
		return ErrHasEnabledDependents(name, enabledDeps)
	}
	destroy := p.Destroy
	r.mu.RUnlock()

	if destroy != nil {
		if err := call(ctx, destroy); err != nil {
			recordOperation("disable", ResultFailed)
			return lifecycleError(CodeDisableFailed, name, "destroy", err)
		}
	}

	r.setEnabled(p, false)
	r.logger.Debug("plugin disabled", "plugin", name)
	recordOperation("disable", ResultSuccess)
	return nil
}

// ForceDisable runs an enabled plugin's Destroy without the dependent check
// and marks it disabled even when Destroy fails. It is the teardown path for
// callers that already disable in dependency order.
func (r *Registry) ForceDisable(ctx context.Context, name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	if !ok {
		r.mu.RUnlock()
		return ErrNotFound(name)
	}
	enabled, destroy := p.Enabled, p.Destroy
	r.mu.RUnlock()
	if !enabled {
		return nil
	}

	var err error
	if destroy != nil {
		err = call(ctx, destroy)
	}
	r.setEnabled(p, false)

	if err != nil {
		recordOperation("force_disable", ResultFailed)
		return lifecycleError(CodeDisableFailed, name, "destroy", err)
	}
	recordOperation("force_disable", ResultSuccess)
	return nil
}

func (r *Registry) setEnabled(p *Descriptor, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Enabled = enabled
}

// registeredDependents returns the sorted names of registered plugins that
// depend on name. Caller holds r.mu.
func (r *Registry) registeredDependents(name string) []string {
	var out []string
	for dependent := range r.dependents[name] {
		if _, ok := r.plugins[dependent]; ok {
			out = append(out, dependent)
		}
	}
	slices.Sort(out)
	return out
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return Descriptor{}, false
	}
	return p.clone(), true
}

// GetAll returns copies of every descriptor in registration order.
func (r *Registry) GetAll() []Descriptor {
	return r.collect(func(*Descriptor) bool { return true })
}

// GetEnabled returns copies of the enabled descriptors in registration order.
func (r *Registry) GetEnabled() []Descriptor {
	return r.collect(func(p *Descriptor) bool { return p.Enabled })
}

// Find returns descriptors whose names match a glob pattern, in
// registration order.
func (r *Registry) Find(pattern string) ([]Descriptor, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.In("plugin").
			Code(CodeInvalidPattern).
			With("pattern", pattern).
			Wrapf(err, "invalid plugin pattern")
	}
	return r.collect(func(p *Descriptor) bool { return g.Match(p.Name) }), nil
}

func (r *Registry) collect(keep func(*Descriptor) bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if p := r.plugins[name]; keep(p) {
			out = append(out, p.clone())
		}
	}
	return out
}

// Dependents returns the sorted names of registered plugins that declare
// name as a dependency.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registeredDependents(name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[name]
	return ok
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// DestroyOrder returns every registered name ordered so that each plugin
// precedes all of its dependencies. Ties follow registration order.
func (r *Registry) DestroyOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visited := make(map[string]bool, len(r.plugins))
	out := make([]string, 0, len(r.plugins))
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dependent := range r.registeredDependents(name) {
			visit(dependent)
		}
		out = append(out, name)
	}
	for _, name := range r.order {
		visit(name)
	}
	return out
}

// Clear drops every descriptor without running any callback.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.plugins)
	clear(r.dependents)
	r.order = nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.plugins))
}

// call runs fn and converts a panic into an error.
func call(ctx context.Context, fn Lifecycle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errs().With("panic", fmt.Sprint(rec)).
				Errorf("plugin callback panicked: %v", rec)
		}
	}()
	return fn(ctx)
}
