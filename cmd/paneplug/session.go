// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/paneplug/paneplug/internal/config"
	"github.com/paneplug/paneplug/internal/logging"
	"github.com/paneplug/paneplug/internal/observability"
	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/goplugin"
	pluginlua "github.com/paneplug/paneplug/internal/plugin/lua"
	"github.com/paneplug/paneplug/internal/plugin/native"
	"github.com/paneplug/paneplug/internal/xdg"
	"github.com/paneplug/paneplug/pkg/errutil"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// LoaderFactory builds the plugin loader.
	// Default: native, binary and Lua runtimes behind plugins.MultiLoader.
	LoaderFactory func(cfg *config.Config, logger *slog.Logger, logOpts logging.Options) plugins.Loader

	// ProgramRunner runs the interactive host until it quits.
	// Default: a bubbletea program on the alternate screen.
	ProgramRunner func(ctx context.Context, m tea.Model) error
}

func (d *Deps) loader(cfg *config.Config, logger *slog.Logger, logOpts logging.Options) plugins.Loader {
	if d.LoaderFactory != nil {
		return d.LoaderFactory(cfg, logger, logOpts)
	}
	return defaultLoader(cfg, logger, logOpts)
}

func (d *Deps) run(ctx context.Context, m tea.Model) error {
	if d.ProgramRunner != nil {
		return d.ProgramRunner(ctx, m)
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal host failed: %w", err)
	}
	return nil
}

// defaultLoader registers every runtime.
func defaultLoader(cfg *config.Config, logger *slog.Logger, logOpts logging.Options) plugins.Loader {
	clients := &goplugin.DefaultClientFactory{
		Logger:       logging.HCLog("plugin", logOpts),
		StartTimeout: cfg.Plugins.StartTimeout,
	}
	return plugins.NewMultiLoader().
		Register(plugins.TypeNative, native.NewLoader(native.WithLogger(logger))).
		Register(plugins.TypeBinary, goplugin.NewLoader(
			goplugin.WithClientFactory(clients),
			goplugin.WithCallTimeout(cfg.Plugins.CallTimeout),
			goplugin.WithLogger(logger),
		)).
		Register(plugins.TypeLua, pluginlua.NewLoader(
			pluginlua.WithCallTimeout(cfg.Plugins.CallTimeout),
			pluginlua.WithLogger(logger),
		))
}

// session is one configured host: logging, metrics and a registry.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
	server  *observability.Server
	metrics *observability.Metrics
	reg     *plugins.Registry
	ready   atomic.Bool
}

// openSession loads configuration and builds the registry. Interactive
// sessions log to a file by default because the terminal belongs to the UI.
func openSession(cmd *cobra.Command, opts *rootOptions, deps *Deps, interactive bool) (*session, error) {
	defaultPath, _ := xdg.ConfigFile()
	cfg, err := config.Load(opts.configFile, defaultPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &session{cfg: cfg}

	logOpts := logging.Options{
		Service: "paneplug",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	}
	logPath := cfg.Log.File
	if logPath == "" && interactive {
		logPath, _ = xdg.LogFile()
	}
	if logPath != "" {
		f, err := logging.OpenFile(logPath)
		if err != nil {
			return nil, err
		}
		s.logFile = f
		logOpts.Writer = f
	}
	s.logger, err = logging.Setup(logOpts)
	if err != nil {
		s.closeLog()
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	slog.SetDefault(s.logger)

	if cfg.Metrics.Addr != "" {
		s.server = observability.NewServer(cfg.Metrics.Addr,
			observability.WithReadiness(s.ready.Load),
			observability.WithLogger(s.logger))
		if _, err := s.server.Start(); err != nil {
			s.closeLog()
			return nil, fmt.Errorf("failed to start observability server: %w", err)
		}
		s.metrics = s.server.Metrics()
	} else {
		s.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	s.reg = plugins.NewRegistry(deps.loader(cfg, s.logger, logOpts),
		plugins.WithLogger(s.logger),
		plugins.WithObserver(s.metrics))
	return s, nil
}

// loadPlugins loads the plugin directory, the configured entries and paths,
// in that order. Failures are logged and counted; they do not stop the rest.
func (s *session) loadPlugins(ctx context.Context, paths []string) int {
	failures := 0

	if s.cfg.Plugins.Autoload {
		dir := s.cfg.Plugins.Dir
		if dir == "" {
			dir, _ = xdg.PluginsDir()
		}
		filter, err := plugins.NewFilter(s.cfg.Plugins.Include, s.cfg.Plugins.Exclude)
		if err != nil {
			errutil.LogError(ctx, s.logger, "invalid plugin filter", err)
			failures++
		} else if dir != "" {
			found, err := plugins.Discover(ctx, dir, filter)
			if err != nil {
				errutil.LogError(ctx, s.logger, "plugin discovery failed", err, "dir", dir)
				failures++
			}
			for _, res := range plugins.LoadAll(ctx, s.reg, found) {
				if res.Err != nil {
					failures++
				}
			}
		}
	}

	for _, e := range s.cfg.Plugins.Entries {
		var err error
		if e.ID != nil {
			_, err = s.reg.LoadWithID(ctx, plugins.ID(*e.ID), e.Path)
		} else {
			_, err = s.reg.Load(ctx, e.Path)
		}
		if err != nil {
			errutil.LogError(ctx, s.logger, "failed to load plugin", err, "path", e.Path)
			failures++
		}
	}

	for _, p := range paths {
		if _, err := s.reg.Load(ctx, p); err != nil {
			errutil.LogError(ctx, s.logger, "failed to load plugin", err, "path", p)
			failures++
		}
	}

	s.ready.Store(true)
	return failures
}

// Close tears down the registry, then stops metrics and closes the log.
func (s *session) Close() error {
	err := s.reg.Close()
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, s.server.Stop(ctx))
	}
	s.closeLog()
	return err
}

func (s *session) closeLog() {
	if s.logFile != nil {
		_ = s.logFile.Close()
		s.logFile = nil
	}
}
