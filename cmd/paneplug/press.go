// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/paneplug/paneplug/internal/host"
	plugins "github.com/paneplug/paneplug/internal/plugin"
)

type pressConfig struct {
	times int
}

// newPressCmd creates the press subcommand.
func newPressCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	cfg := &pressConfig{}

	cmd := &cobra.Command{
		Use:   "press <id> <label> [plugin...]",
		Short: "Press a button of a loaded plugin and print the result",
		Long: `Load plugins the same way run does, press the first enabled button
labelled <label> in plugin <id>, run the commands that follow to completion,
then print the plugin's render tree.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPress(cmd, opts, deps, cfg, args)
		},
	}

	cmd.Flags().IntVar(&cfg.times, "times", 1, "number of presses")

	return cmd
}

func runPress(cmd *cobra.Command, opts *rootOptions, deps *Deps, cfg *pressConfig, args []string) error {
	n, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid plugin id %q: %w", args[0], err)
	}
	id, label := plugins.ID(n), args[1]
	if cfg.times < 1 {
		return fmt.Errorf("--times must be at least 1, got %d", cfg.times)
	}

	s, err := openSession(cmd, opts, deps, false)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	s.loadPlugins(ctx, args[2:])

	for range cfg.times {
		view, ok := s.reg.View(id)
		if !ok {
			return fmt.Errorf("plugin #%d is not loaded", id)
		}
		button, ok := view.Find(label)
		if !ok {
			return fmt.Errorf("plugin #%d has no enabled button %q", id, label)
		}
		msg, ok := plugins.Untag(button.OnPress)
		if !ok {
			return fmt.Errorf("button %q carries no message", label)
		}
		cmds := s.reg.Update(ctx, msg.ID, msg.Envelope.Clone())
		host.Settle(ctx, s.reg, cmds, s.cfg.Plugins.CommandTimeout)
	}

	return printView(cmd.OutOrStdout(), s.reg, id)
}
