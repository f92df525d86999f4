// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	plugins "github.com/paneplug/paneplug/internal/plugin"
)

// newValidateCmd creates the validate subcommand.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>...",
		Short: "Validate plugin manifests without loading them",
		Long: `Validate the plugin.yaml of each directory against the manifest schema
and the manifest rules. Nothing is loaded.
Exits with code 0 on success, non-zero on failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
}

func runValidate(cmd *cobra.Command, dirs []string) error {
	invalid := 0
	for _, dir := range dirs {
		if err := validateManifest(dir); err != nil {
			invalid++
			cmd.PrintErrf("%s: %s\n", dir, err)
			continue
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", dir)
	}
	if invalid > 0 {
		return fmt.Errorf("validation failed: %d of %d manifests invalid", invalid, len(dirs))
	}
	return nil
}

func validateManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, plugins.ManifestFile))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := plugins.ValidateSchema(data); err != nil {
		return errors.New(plugins.FormatSchemaError(err))
	}
	if _, err := plugins.ParseManifest(data); err != nil {
		return err
	}
	return nil
}
