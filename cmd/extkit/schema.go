// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extkit/internal/plugin"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the plugin manifest JSON Schema",
		Long: `Print the JSON Schema for plugin.yaml manifests, or write it to a file
with --out. Editors can use the schema for completion and validation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchema(cmd, out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "write the schema to this file instead of stdout")

	return cmd
}

func runSchema(cmd *cobra.Command, out string) error {
	schema, err := plugin.GenerateSchema()
	if err != nil {
		return err
	}
	if out == "" {
		cmd.Println(string(schema))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
	}
	if err := os.WriteFile(out, append(schema, '\n'), 0o600); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
	}
	cmd.Printf("Generated %s\n", out)
	return nil
}
