// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extkit/internal/config"
	"github.com/holomush/extkit/internal/logging"
	"github.com/holomush/extkit/internal/plugin"
)

// PluginEntry describes one discovered plugin in `plugins list` output.
type PluginEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Type         string   `json:"type"`
	Enabled      bool     `json:"enabled"`
	Dependencies []string `json:"dependencies,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Dir          string   `json:"dir"`
	// LoadOrder is the 1-based position in the load order, or 0 when the
	// plugin cannot be loaded.
	LoadOrder int    `json:"load_order"`
	Problem   string `json:"problem,omitempty"`
}

// pluginsListConfig holds configuration for the plugins list command.
type pluginsListConfig struct {
	filter     string
	jsonOutput bool
}

// NewPluginsCmd creates the plugins command group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and validate plugins",
		Long:  `List discovered plugins with their load order, or validate plugin manifests.`,
	}

	cmd.PersistentFlags().String("plugins-dir", config.DefaultPluginsDir, "directory containing plugin subdirectories")

	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsValidateCmd())

	return cmd
}

func newPluginsListCmd() *cobra.Command {
	cfg := &pluginsListConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins in load order",
		Long: `List every plugin with a valid manifest, its version and dependencies,
and its position in the load order. Plugins whose dependencies cannot be
satisfied are listed with the problem instead of a position.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPluginsList(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.filter, "filter", "", "only list plugins whose name matches this glob")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runPluginsList(cmd *cobra.Command, cfg *pluginsListConfig) error {
	var match glob.Glob
	if cfg.filter != "" {
		g, err := glob.Compile(cfg.filter)
		if err != nil {
			return oops.Code("INVALID_FILTER").With("filter", cfg.filter).Wrap(err)
		}
		match = g
	}

	pluginsDir, err := resolvePluginsDir(cmd)
	if err != nil {
		return err
	}

	manager := plugin.NewManager(pluginsDir, plugin.WithManagerLogger(cliLogger(cmd)))
	discovered, err := manager.Discover(cmd.Context())
	if err != nil {
		return err
	}

	entries := listEntries(discovered)
	if match != nil {
		kept := entries[:0]
		for _, e := range entries {
			if match.Match(e.Name) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return oops.Wrapf(err, "failed to marshal plugins")
		}
		cmd.Println(string(data))
		return nil
	}
	if len(entries) == 0 {
		cmd.Printf("no plugins found in %s\n", pluginsDir)
		return nil
	}
	cmd.Print(formatPluginTable(entries))
	return nil
}

// listEntries resolves the load order and describes each plugin, ordered
// plugins first.
func listEntries(discovered []*plugin.DiscoveredPlugin) []PluginEntry {
	ordered, problems := plugin.Resolve(discovered)

	position := make(map[string]int, len(ordered))
	for i, dp := range ordered {
		position[dp.Manifest.Name] = i + 1
	}
	problemFor := make(map[string]string)
	for _, p := range problems {
		if name := problemPlugin(p); name != "" {
			if _, seen := problemFor[name]; !seen {
				problemFor[name] = p.Error()
			}
		}
	}

	entries := make([]PluginEntry, 0, len(discovered))
	for _, dp := range append(ordered, unresolved(discovered, position)...) {
		m := dp.Manifest
		deps := make([]string, 0, len(m.Dependencies))
		for _, d := range m.ParsedDependencies() {
			deps = append(deps, d.String())
		}
		entries = append(entries, PluginEntry{
			Name:         m.Name,
			Version:      m.Version,
			Type:         string(m.Type),
			Enabled:      m.IsEnabled(),
			Dependencies: deps,
			Capabilities: m.Capabilities,
			Dir:          dp.Dir,
			LoadOrder:    position[m.Name],
			Problem:      problemFor[m.Name],
		})
	}
	return entries
}

func unresolved(discovered []*plugin.DiscoveredPlugin, position map[string]int) []*plugin.DiscoveredPlugin {
	var out []*plugin.DiscoveredPlugin
	for _, dp := range discovered {
		if position[dp.Manifest.Name] == 0 {
			out = append(out, dp)
		}
	}
	return out
}

func problemPlugin(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	name, _ := oopsErr.Context()["plugin"].(string)
	return name
}

func formatPluginTable(entries []PluginEntry) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ORDER\tNAME\tVERSION\tENABLED\tDEPENDENCIES")
	for _, e := range entries {
		order := "-"
		if e.LoadOrder > 0 {
			order = fmt.Sprint(e.LoadOrder)
		}
		deps := "-"
		if len(e.Dependencies) > 0 {
			deps = strings.Join(e.Dependencies, ", ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", order, e.Name, e.Version, e.Enabled, deps)
	}
	_ = w.Flush()

	for _, e := range entries {
		if e.Problem != "" {
			_, _ = fmt.Fprintf(&buf, "\n%s: %s", e.Name, e.Problem)
		}
	}
	if strings.HasSuffix(buf.String(), "\n") {
		return buf.String()
	}
	return buf.String() + "\n"
}

func newPluginsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate plugin manifests",
		Long: `Validate plugin.yaml manifests against the JSON Schema and the manifest
rules (name, semantic version, dependency references, entry file), then
check that every dependency can be satisfied.

dir is either a single plugin directory or a directory of plugins. It
defaults to --plugins-dir. Exits non-zero when any manifest is invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				resolved, err := resolvePluginsDir(cmd)
				if err != nil {
					return err
				}
				dir = resolved
			}
			return runPluginsValidate(cmd, dir)
		},
	}
}

func runPluginsValidate(cmd *cobra.Command, dir string) error {
	manifests, err := manifestPaths(dir)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return oops.Code("NO_PLUGINS").With("dir", dir).Errorf("no %s found under %s", plugin.ManifestFile, dir)
	}

	var valid []*plugin.DiscoveredPlugin
	failures := 0
	for _, path := range manifests {
		m, err := validateManifest(path)
		if err != nil {
			failures++
			cmd.Printf("FAIL  %s: %s\n", path, err)
			continue
		}
		cmd.Printf("ok    %s (%s %s)\n", path, m.Name, m.Version)
		valid = append(valid, &plugin.DiscoveredPlugin{Manifest: m, Dir: filepath.Dir(path)})
	}

	_, problems := plugin.Resolve(valid)
	for _, p := range problems {
		failures++
		cmd.Printf("FAIL  %s\n", p)
	}

	if failures > 0 {
		return oops.Code("VALIDATION_FAILED").
			With("dir", dir).
			With("failures", failures).
			Errorf("validation failed: %d problem(s) in %d manifest(s)", failures, len(manifests))
	}
	cmd.Printf("all %d manifest(s) valid\n", len(manifests))
	return nil
}

// manifestPaths returns dir/plugin.yaml when present, otherwise every
// dir/*/plugin.yaml.
func manifestPaths(dir string) ([]string, error) {
	single := filepath.Join(dir, plugin.ManifestFile)
	if _, err := os.Stat(single); err == nil {
		return []string{single}, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, oops.Code("NO_PLUGINS").With("dir", dir).Wrap(err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*", plugin.ManifestFile))
	if err != nil {
		return nil, oops.With("dir", dir).Wrap(err)
	}
	return matches, nil
}

func validateManifest(path string) (*plugin.Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err //nolint:wrapcheck // printed next to the path
	}
	if err := plugin.ValidateSchema(data); err != nil {
		return nil, errors.New(plugin.FormatSchemaError(err))
	}
	m, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, err //nolint:wrapcheck // printed next to the path
	}
	if m.LuaPlugin != nil {
		entry := filepath.Join(filepath.Dir(path), m.LuaPlugin.Entry)
		if _, err := os.Stat(entry); err != nil {
			return nil, fmt.Errorf("entry file %s: %w", m.LuaPlugin.Entry, err)
		}
	}
	return m, nil
}

// resolvePluginsDir reads --plugins-dir over the config file.
func resolvePluginsDir(cmd *cobra.Command) (string, error) {
	loader, err := config.NewLoader(configFile, cmd.Flags())
	if err != nil {
		return "", err
	}
	cfg, err := loader.Load()
	if err != nil {
		return "", err
	}
	return cfg.PluginsDir, nil
}

// cliLogger logs warnings as text to the command's error stream.
func cliLogger(cmd *cobra.Command) *slog.Logger {
	return logging.New(logging.Options{
		Service: "extkit",
		Version: version,
		Format:  logging.FormatText,
		Level:   slog.LevelWarn,
		Writer:  cmd.ErrOrStderr(),
	})
}
