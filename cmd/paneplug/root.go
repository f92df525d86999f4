// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/paneplug/paneplug/internal/config"
)

// NewRootCmd creates the root command for the paneplug CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&Deps{})
}

func newRootCmd(deps *Deps) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "paneplug",
		Short: "paneplug - load UI plugins at runtime",
		Long: `paneplug loads plugins at runtime and shows each one as a pane.

Plugins are Go shared objects (.so), executables speaking the paneplug
gRPC protocol, or Lua scripts. A directory with a plugin.yaml manifest
may hold any of them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/paneplug/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(opts, deps))
	cmd.AddCommand(newListCmd(opts, deps))
	cmd.AddCommand(newViewCmd(opts, deps))
	cmd.AddCommand(newPressCmd(opts, deps))
	cmd.AddCommand(newValidateCmd())

	return cmd
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}
