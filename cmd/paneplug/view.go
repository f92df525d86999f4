// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

type viewConfig struct {
	id int
}

// newViewCmd creates the view subcommand.
func newViewCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cfg := &viewConfig{}

	cmd := &cobra.Command{
		Use:   "view [plugin...]",
		Short: "Load plugins and print their render trees",
		Long: `Load plugins the same way run does and print each render tree as an
indented outline. Useful for checking a plugin without a terminal UI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, opts, deps, cfg, args)
		},
	}

	cmd.Flags().IntVar(&cfg.id, "id", -1, "only print the plugin with this id")

	return cmd
}

func runView(cmd *cobra.Command, opts *rootOptions, deps *Deps, cfg *viewConfig, args []string) error {
	s, err := openSession(cmd, opts, deps, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	s.loadPlugins(cmd.Context(), args)

	if cfg.id >= 0 {
		return printView(cmd.OutOrStdout(), s.reg, plugins.ID(cfg.id))
	}
	for _, e := range s.reg.List() {
		if err := printView(cmd.OutOrStdout(), s.reg, e.ID); err != nil {
			return err
		}
	}
	return nil
}

func printView(w io.Writer, reg *plugins.Registry, id plugins.ID) error {
	e, ok := reg.Get(id)
	if !ok {
		return fmt.Errorf("plugin #%d is not loaded", id)
	}
	view, _ := reg.View(id)
	_, _ = fmt.Fprintf(w, "#%d %s %s (%s)\n", e.ID, e.Name, e.Version, e.Runtime)
	writeOutline(w, view, 1)
	return nil
}

// writeOutline prints one line per node, children indented under parents.
func writeOutline(w io.Writer, n pluginpkg.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case pluginpkg.KindText:
		_, _ = fmt.Fprintf(w, "%stext %q\n", indent, n.Text)
	case pluginpkg.KindButton:
		suffix := ""
		if n.OnPress.IsZero() {
			suffix = " (disabled)"
		}
		_, _ = fmt.Fprintf(w, "%sbutton %q%s\n", indent, n.Text, suffix)
	default:
		_, _ = fmt.Fprintf(w, "%s%s\n", indent, n.Kind)
	}
	for _, c := range n.Children {
		writeOutline(w, c, depth+1)
	}
}
