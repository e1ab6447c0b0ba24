// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// ManifestFile is the manifest name looked up in each plugin directory.
const ManifestFile = "plugin.yaml"

// Manager discovers plugins on disk and loads them into a runtime host.
type Manager struct {
	pluginsDir string
	luaHost    Host
	logger     *slog.Logger
	loaded     map[string]*DiscoveredPlugin
	mu         sync.RWMutex
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLuaHost sets the Lua host for the manager.
func WithLuaHost(h Host) ManagerOption {
	return func(m *Manager) {
		m.luaHost = h
	}
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a plugin manager.
func NewManager(pluginsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir: pluginsDir,
		logger:     slog.Default(),
		loaded:     make(map[string]*DiscoveredPlugin),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Discover finds all valid plugins in the plugins directory, sorted by name.
// Invalid plugins are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs().With("dir", m.pluginsDir).Wrapf(err, "failed to read plugins directory")
	}

	var plugins []*DiscoveredPlugin
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, ManifestFile)) //nolint:gosec // path is built from ReadDir entries
		if err != nil {
			m.logger.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			m.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}
		if other, ok := seen[manifest.Name]; ok {
			m.logger.Warn("skipping plugin with duplicate name",
				"plugin", manifest.Name,
				"dir", entry.Name(),
				"first_dir", other)
			continue
		}
		seen[manifest.Name] = entry.Name()

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins, nil
}

// Resolve orders plugins so each follows its dependencies, breaking ties by
// name. Plugins with a missing dependency, an unsatisfied version
// constraint, or a dependency cycle are left out, with one error each.
func Resolve(plugins []*DiscoveredPlugin) ([]*DiscoveredPlugin, []error) {
	byName := make(map[string]*DiscoveredPlugin, len(plugins))
	for _, p := range plugins {
		byName[p.Manifest.Name] = p
	}

	var problems []error
	rejected := make(map[string]bool)
	for _, p := range plugins {
		if err := checkDependencies(p.Manifest, byName); err != nil {
			problems = append(problems, err)
			rejected[p.Manifest.Name] = true
		}
	}
	// A plugin whose dependency was rejected cannot load either.
	for changed := true; changed; {
		changed = false
		for _, p := range plugins {
			name := p.Manifest.Name
			if rejected[name] {
				continue
			}
			for _, dep := range p.Manifest.DependencyNames() {
				if rejected[dep] {
					problems = append(problems, ErrDependencyNotFound(name, dep))
					rejected[name] = true
					changed = true
					break
				}
			}
		}
	}

	// Kahn's algorithm over the remaining plugins.
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	var ready []string
	for _, p := range plugins {
		name := p.Manifest.Name
		if rejected[name] {
			continue
		}
		deps := p.Manifest.DependencyNames()
		indegree[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
		if len(deps) == 0 {
			ready = append(ready, name)
		}
	}

	ordered := make([]*DiscoveredPlugin, 0, len(indegree))
	for len(ready) > 0 {
		slices.Sort(ready)
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) < len(indegree) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		slices.Sort(stuck)
		for _, name := range stuck {
			problems = append(problems, ErrCircularDependency(name, stuck))
		}
	}

	return ordered, problems
}

func checkDependencies(m *Manifest, byName map[string]*DiscoveredPlugin) error {
	for _, dep := range m.ParsedDependencies() {
		target, ok := byName[dep.Name]
		if !ok {
			return ErrDependencyNotFound(m.Name, dep.Name)
		}
		if dep.Constraint == nil {
			continue
		}
		v, err := semver.NewVersion(target.Manifest.Version)
		if err != nil || !dep.Constraint.Check(v) {
			return errs().Code(CodeDependencyVersionMatch).
				With("plugin", m.Name).
				With("dependency", dep.Name).
				With("constraint", dep.Constraint.String()).
				With("version", target.Manifest.Version).
				Errorf("plugin %q requires %s, found version %s", m.Name, dep, target.Manifest.Version)
		}
	}
	return nil
}

// LoadAll discovers, orders, and loads every plugin, returning registrable
// descriptors in dependency order.
//
// Individual plugin failures are logged and skipped, along with anything
// that depends on them, so one broken plugin does not stop the rest.
func (m *Manager) LoadAll(ctx context.Context) ([]Descriptor, error) {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return nil, err
	}

	ordered, problems := Resolve(discovered)
	for _, problem := range problems {
		m.logger.Warn("skipping unresolvable plugin", "error", problem)
	}

	failed := make(map[string]bool)
	descriptors := make([]Descriptor, 0, len(ordered))
	for _, dp := range ordered {
		name := dp.Manifest.Name
		if dep := firstFailed(dp.Manifest, failed); dep != "" {
			m.logger.Warn("skipping plugin with failed dependency",
				"plugin", name,
				"dependency", dep)
			failed[name] = true
			continue
		}

		d, err := m.loadPlugin(ctx, dp)
		if err != nil {
			m.logger.Error("failed to load plugin",
				"plugin", name,
				"error", err)
			failed[name] = true
			continue
		}
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

func firstFailed(m *Manifest, failed map[string]bool) string {
	for _, dep := range m.DependencyNames() {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

var errNoHost = errors.New("no host configured for plugin type")

// loadPlugin loads a single discovered plugin into its host and returns its
// descriptor with the manifest's metadata applied.
func (m *Manager) loadPlugin(ctx context.Context, dp *DiscoveredPlugin) (Descriptor, error) {
	var host Host
	switch dp.Manifest.Type {
	case TypeLua:
		host = m.luaHost
	default:
		// Validate rejects unknown types; this covers manifests built in code.
		return Descriptor{}, errs().
			With("plugin", dp.Manifest.Name).
			With("type", dp.Manifest.Type).
			Errorf("unknown plugin type")
	}
	if host == nil {
		return Descriptor{}, errs().With("plugin", dp.Manifest.Name).Wrap(errNoHost)
	}

	if err := host.Load(ctx, dp.Manifest, dp.Dir); err != nil {
		return Descriptor{}, errs().With("plugin", dp.Manifest.Name).Wrapf(err, "load plugin")
	}
	d, ok := host.Descriptor(dp.Manifest.Name)
	if !ok {
		return Descriptor{}, errs().With("plugin", dp.Manifest.Name).Errorf("host did not provide a descriptor")
	}
	d.Name = dp.Manifest.Name
	d.Version = dp.Manifest.Version
	d.Enabled = dp.Manifest.IsEnabled()
	d.Dependencies = dp.Manifest.DependencyNames()

	m.mu.Lock()
	m.loaded[dp.Manifest.Name] = dp
	m.mu.Unlock()

	m.logger.Info("loaded plugin",
		"plugin", dp.Manifest.Name,
		"type", dp.Manifest.Type,
		"version", dp.Manifest.Version)

	return d, nil
}

// ListPlugins returns names of all loaded plugins.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close shuts down the manager and all loaded plugins.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Clear loaded map first to ensure consistent state even if close fails.
	m.loaded = make(map[string]*DiscoveredPlugin)

	if m.luaHost != nil {
		if err := m.luaHost.Close(ctx); err != nil {
			return errs().Wrapf(err, "close lua host")
		}
	}
	return nil
}
