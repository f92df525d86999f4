// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/paneplug/paneplug/internal/tui"
)

// newRunCmd creates the run subcommand, the interactive host.
func newRunCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "run [plugin...]",
		Short: "Load plugins and show them in the terminal",
		Long: `Load the plugin directory, the configured entries and any plugin paths
given as arguments, then show each plugin as a pane.

Keys: tab/shift+tab move focus, enter presses, u unloads, q quits.
Logs go to the configured log file, or XDG_STATE_HOME/paneplug/paneplug.log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, opts, deps, args)
		},
	}
}

func runHost(cmd *cobra.Command, opts *rootOptions, deps *Deps, args []string) error {
	s, err := openSession(cmd, opts, deps, true)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	if failed := s.loadPlugins(ctx, args); failed > 0 {
		s.logger.WarnContext(ctx, "some plugins failed to load", "count", failed)
	}

	m := tui.New(s.reg,
		tui.WithLogger(s.logger),
		tui.WithCommandTimeout(s.cfg.Plugins.CommandTimeout))
	runErr := deps.run(ctx, m)
	m.Shutdown()
	if runErr != nil {
		return runErr
	}
	return m.Err()
}
