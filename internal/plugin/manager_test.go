// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/extkit/internal/plugin"
	"github.com/holomush/extkit/pkg/errutil"
)

// Helper functions for creating test fixtures with secure permissions.
func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

// writePlugin creates <root>/<dir>/plugin.yaml and an empty entry script.
func writePlugin(t *testing.T, root, name, version string, deps ...string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	mkdirAll(t, dir)
	manifest := "name: " + name + "\nversion: " + version + "\ntype: lua\nlua-plugin:\n  entry: main.lua\n"
	if len(deps) > 0 {
		manifest += "dependencies:\n"
		for _, d := range deps {
			manifest += "  - \"" + d + "\"\n"
		}
	}
	writeFile(t, filepath.Join(dir, plugin.ManifestFile), []byte(manifest))
	writeFile(t, filepath.Join(dir, "main.lua"), []byte("-- "+name))
	return dir
}

// mockHost is a testify mock of plugin.Host.
type mockHost struct {
	mock.Mock
}

func (h *mockHost) Load(ctx context.Context, manifest *plugin.Manifest, dir string) error {
	return h.Called(ctx, manifest, dir).Error(0)
}

func (h *mockHost) Unload(ctx context.Context, name string) error {
	return h.Called(ctx, name).Error(0)
}

func (h *mockHost) Descriptor(name string) (plugin.Descriptor, bool) {
	args := h.Called(name)
	return args.Get(0).(plugin.Descriptor), args.Bool(1)
}

func (h *mockHost) Plugins() []string {
	return h.Called().Get(0).([]string)
}

func (h *mockHost) Close(ctx context.Context) error {
	return h.Called(ctx).Error(0)
}

func names(plugins []*plugin.DiscoveredPlugin) []string {
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.Manifest.Name
	}
	return out
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	greeterDir := writePlugin(t, root, "greeter", "1.0.0")
	writePlugin(t, root, "counter", "1.0.0")

	mgr := plugin.NewManager(root)
	discovered, err := mgr.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"counter", "greeter"}, names(discovered), "sorted by name")
	assert.Equal(t, greeterDir, discovered[1].Dir)
}

func TestManager_Discover_SkipsInvalidPlugins(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "good", "1.0.0")

	bad := filepath.Join(root, "bad")
	mkdirAll(t, bad)
	writeFile(t, filepath.Join(bad, plugin.ManifestFile), []byte("name: Bad Name\nversion: 1.0.0\ntype: lua\n"))

	mkdirAll(t, filepath.Join(root, "no-manifest"))
	writeFile(t, filepath.Join(root, "stray-file.txt"), []byte("ignored"))

	discovered, err := plugin.NewManager(root).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, names(discovered))
}

func TestManager_Discover_SkipsDuplicateNames(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "dup", "1.0.0")
	other := filepath.Join(root, "dup-copy")
	mkdirAll(t, other)
	writeFile(t, filepath.Join(other, plugin.ManifestFile),
		[]byte("name: dup\nversion: 2.0.0\ntype: lua\nlua-plugin:\n  entry: main.lua\n"))

	discovered, err := plugin.NewManager(root).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "1.0.0", discovered[0].Manifest.Version)
}

func TestManager_Discover_MissingDirectory(t *testing.T) {
	discovered, err := plugin.NewManager(filepath.Join(t.TempDir(), "absent")).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discovered)
}

func TestResolve_OrdersDependenciesFirst(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "zeta", "1.0.0")
	writePlugin(t, root, "app", "1.0.0", "ui", "core@^1.2")
	writePlugin(t, root, "ui", "2.0.0", "core")
	writePlugin(t, root, "core", "1.4.0")

	discovered, err := plugin.NewManager(root).Discover(context.Background())
	require.NoError(t, err)

	ordered, problems := plugin.Resolve(discovered)

	assert.Empty(t, problems)
	assert.Equal(t, []string{"core", "ui", "app", "zeta"}, names(ordered))
}

func TestResolve_RejectsUnsatisfiedPlugins(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "core", "1.0.0")
	writePlugin(t, root, "too-new", "1.0.0", "core@>=2")
	writePlugin(t, root, "orphan", "1.0.0", "missing")
	writePlugin(t, root, "downstream", "1.0.0", "too-new")
	writePlugin(t, root, "loop-a", "1.0.0", "loop-b")
	writePlugin(t, root, "loop-b", "1.0.0", "loop-a")

	discovered, err := plugin.NewManager(root).Discover(context.Background())
	require.NoError(t, err)

	ordered, problems := plugin.Resolve(discovered)

	assert.Equal(t, []string{"core"}, names(ordered))
	var codes []string
	for _, p := range problems {
		codes = append(codes, errutil.Code(p))
	}
	assert.ElementsMatch(t, []string{
		plugin.CodeDependencyVersionMatch,
		plugin.CodeDependencyNotFound,
		plugin.CodeDependencyNotFound,
		plugin.CodeCircularDependency,
		plugin.CodeCircularDependency,
	}, codes)
}

func TestManager_LoadAll(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePlugin(t, root, "greeter", "1.1.0", "counter")
	writePlugin(t, root, "counter", "1.0.0")

	host := &mockHost{}
	host.On("Load", ctx, mock.Anything, mock.Anything).Return(nil)
	host.On("Descriptor", "counter").Return(plugin.Descriptor{Component: "counter-ui"}, true)
	host.On("Descriptor", "greeter").Return(plugin.Descriptor{}, true)

	mgr := plugin.NewManager(root, plugin.WithLuaHost(host))
	descriptors, err := mgr.LoadAll(ctx)
	require.NoError(t, err)

	require.Len(t, descriptors, 2)
	assert.Equal(t, "counter", descriptors[0].Name)
	assert.Equal(t, "counter-ui", descriptors[0].Component)
	assert.True(t, descriptors[0].Enabled)
	assert.Equal(t, "greeter", descriptors[1].Name)
	assert.Equal(t, "1.1.0", descriptors[1].Version)
	assert.Equal(t, []string{"counter"}, descriptors[1].Dependencies)
	assert.Equal(t, []string{"counter", "greeter"}, mgr.ListPlugins())
	host.AssertExpectations(t)
}

func TestManager_LoadAll_SkipsDependentsOfFailedPlugins(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writePlugin(t, root, "broken", "1.0.0")
	writePlugin(t, root, "needs-broken", "1.0.0", "broken")
	writePlugin(t, root, "fine", "1.0.0")

	host := &mockHost{}
	host.On("Load", ctx, mock.MatchedBy(func(m *plugin.Manifest) bool { return m.Name == "broken" }), mock.Anything).
		Return(errors.New("syntax error"))
	host.On("Load", ctx, mock.MatchedBy(func(m *plugin.Manifest) bool { return m.Name == "fine" }), mock.Anything).
		Return(nil)
	host.On("Descriptor", "fine").Return(plugin.Descriptor{}, true)

	descriptors, err := plugin.NewManager(root, plugin.WithLuaHost(host)).LoadAll(ctx)
	require.NoError(t, err)

	require.Len(t, descriptors, 1)
	assert.Equal(t, "fine", descriptors[0].Name)
	host.AssertNotCalled(t, "Load", ctx, mock.MatchedBy(func(m *plugin.Manifest) bool { return m.Name == "needs-broken" }), mock.Anything)
}

func TestManager_LoadAll_WithoutHost(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "lonely", "1.0.0")

	descriptors, err := plugin.NewManager(root).LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	host := &mockHost{}
	host.On("Close", ctx).Return(nil).Once()

	require.NoError(t, plugin.NewManager(t.TempDir(), plugin.WithLuaHost(host)).Close(ctx))
	require.NoError(t, plugin.NewManager(t.TempDir()).Close(ctx), "no host configured")
	host.AssertExpectations(t)
}

func TestManager_Close_PropagatesHostError(t *testing.T) {
	ctx := context.Background()
	host := &mockHost{}
	host.On("Close", ctx).Return(errors.New("stuck"))

	err := plugin.NewManager(t.TempDir(), plugin.WithLuaHost(host)).Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close lua host")
}
