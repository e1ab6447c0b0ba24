// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the extkit CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extkit",
		Short: "extkit - a plugin host with shared state and lifecycle hooks",
		Long: `extkit hosts sandboxed Lua plugins around a shared reactive state
store and a lifecycle hook bus, with dependency-ordered startup and teardown.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/extkit/extkit.yaml)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
