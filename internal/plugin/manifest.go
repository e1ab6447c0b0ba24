// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin provides the plugin registry, manifests, and discovery.
package plugin

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the system.
const (
	TypeLua Type = "lua"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string     `yaml:"name" jsonschema:"required,minLength=1,maxLength=64,pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$"`
	Version      string     `yaml:"version" jsonschema:"required,minLength=1,description=Semantic version"`
	Description  string     `yaml:"description,omitempty"`
	Type         Type       `yaml:"type" jsonschema:"required,enum=lua"`
	Enabled      *bool      `yaml:"enabled,omitempty" jsonschema:"description=Enable on registration (default true)"`
	Dependencies []string   `yaml:"dependencies,omitempty" jsonschema:"description=Plugin names with an optional @constraint suffix"`
	Capabilities []string   `yaml:"capabilities,omitempty" jsonschema:"description=Glob patterns granting host API access"`
	LuaPlugin    *LuaConfig `yaml:"lua-plugin,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" jsonschema:"required,minLength=1"`
}

// Dependency is a parsed manifest dependency reference.
type Dependency struct {
	Name       string
	Constraint *semver.Constraints
}

// String renders the reference the way it appears in a manifest.
func (d Dependency) String() string {
	if d.Constraint == nil {
		return d.Name
	}
	return d.Name + "@" + d.Constraint.String()
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, manifestError("", "manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errs().Code(CodeInvalidManifest).Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return manifestError(m.Name, "name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return manifestError(m.Name, "name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return manifestError(m.Name, "version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return manifestError(m.Name, "version %q is not a semantic version: %v", m.Version, err)
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil {
			return manifestError(m.Name, "lua-plugin is required when type is lua")
		}
		if m.LuaPlugin.Entry == "" {
			return manifestError(m.Name, "lua-plugin.entry is required")
		}
	default:
		return manifestError(m.Name, "type must be 'lua', got %q", m.Type)
	}

	seen := make(map[string]bool, len(m.Dependencies))
	for _, ref := range m.Dependencies {
		dep, err := ParseDependency(ref)
		if err != nil {
			return manifestError(m.Name, "%v", err)
		}
		if dep.Name == m.Name {
			return manifestError(m.Name, "plugin cannot depend on itself")
		}
		if seen[dep.Name] {
			return manifestError(m.Name, "dependency %q is listed twice", dep.Name)
		}
		seen[dep.Name] = true
	}

	return nil
}

// IsEnabled reports whether the plugin should be enabled on registration.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ParsedDependencies returns the manifest dependencies with their
// constraints. The manifest must already be valid.
func (m *Manifest) ParsedDependencies() []Dependency {
	deps := make([]Dependency, 0, len(m.Dependencies))
	for _, ref := range m.Dependencies {
		if dep, err := ParseDependency(ref); err == nil {
			deps = append(deps, dep)
		}
	}
	return deps
}

// DependencyNames returns the dependency names without constraints.
func (m *Manifest) DependencyNames() []string {
	deps := m.ParsedDependencies()
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = d.Name
	}
	return names
}

// ParseDependency parses "name" or "name@constraint".
func ParseDependency(ref string) (Dependency, error) {
	name, constraint, hasConstraint := strings.Cut(strings.TrimSpace(ref), "@")
	if !namePattern.MatchString(name) || len(name) > maxNameLength {
		return Dependency{}, errs().Code(CodeInvalidManifest).
			With("dependency", ref).
			Errorf("invalid dependency name in %q", ref)
	}
	dep := Dependency{Name: name}
	if hasConstraint {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return Dependency{}, errs().Code(CodeInvalidManifest).
				With("dependency", ref).
				Wrapf(err, "invalid version constraint in %q", ref)
		}
		dep.Constraint = c
	}
	return dep, nil
}

func manifestError(name, format string, args ...any) error {
	b := errs().Code(CodeInvalidManifest)
	if name != "" {
		b = b.With("plugin", name)
	}
	return b.Errorf(format, args...)
}
