// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	plugins "github.com/paneplug/paneplug/internal/plugin"
)

// listedPlugin is one row of the list output.
type listedPlugin struct {
	ID       plugins.ID `json:"id"`
	Name     string     `json:"name"`
	Version  string     `json:"version"`
	Semver   bool       `json:"semver"`
	Runtime  string     `json:"runtime"`
	Path     string     `json:"path"`
	Instance string     `json:"instance"`
	LoadedAt time.Time  `json:"loaded_at"`
}

type listConfig struct {
	jsonOutput bool
}

// newListCmd creates the list subcommand.
func newListCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list [plugin...]",
		Short: "Load plugins and list what loaded",
		Long: `Load plugins the same way run does, print one row per loaded plugin
in id order, then unload them. Load failures are logged to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, deps, cfg, args)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runList(cmd *cobra.Command, opts *rootOptions, deps *Deps, cfg *listConfig, args []string) error {
	s, err := openSession(cmd, opts, deps, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	s.loadPlugins(cmd.Context(), args)

	entries := s.reg.List()
	rows := make([]listedPlugin, 0, len(entries))
	for _, e := range entries {
		_, verr := semver.NewVersion(e.Version)
		rows = append(rows, listedPlugin{
			ID:       e.ID,
			Name:     e.Name,
			Version:  e.Version,
			Semver:   verr == nil,
			Runtime:  e.Runtime,
			Path:     e.Path,
			Instance: e.Instance.String(),
			LoadedAt: e.LoadedAt,
		})
	}

	if cfg.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		return nil
	}
	return writeTable(cmd.OutOrStdout(), rows)
}

func writeTable(out io.Writer, rows []listedPlugin) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tRUNTIME\tPATH")
	for _, r := range rows {
		v := r.Version
		if !r.Semver {
			v += " (non-semver)"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Name, v, r.Runtime, r.Path)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}
