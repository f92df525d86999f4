// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package config loads paneplug configuration from defaults, a YAML file and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/paneplug/paneplug/internal/logging"
	plugins "github.com/paneplug/paneplug/internal/plugin"
)

// CodeInvalidConfig is attached to every validation failure.
const CodeInvalidConfig = "CONFIG_INVALID"

// Config is the complete host configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Plugins PluginsConfig `koanf:"plugins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	// File receives log output. Empty means stderr, which the TUI replaces
	// with the default log file.
	File string `koanf:"file"`
}

// MetricsConfig configures the metrics and health endpoint.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
}

// PluginsConfig configures plugin discovery and runtimes.
type PluginsConfig struct {
	Dir      string   `koanf:"dir"`
	Include  []string `koanf:"include"`
	Exclude  []string `koanf:"exclude"`
	Autoload bool     `koanf:"autoload"`
	// Entries are loaded in order after discovery.
	Entries        []EntryConfig `koanf:"entries"`
	CallTimeout    time.Duration `koanf:"call_timeout"`
	StartTimeout   time.Duration `koanf:"start_timeout"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

// EntryConfig loads one plugin, optionally under a fixed id.
type EntryConfig struct {
	ID   *int   `koanf:"id"`
	Path string `koanf:"path"`
}

// Defaults returns the built-in configuration as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"log.format":              logging.FormatJSON,
		"log.level":               "info",
		"log.file":                "",
		"metrics.addr":            "",
		"plugins.dir":             "",
		"plugins.include":         []string{},
		"plugins.exclude":         []string{},
		"plugins.autoload":        true,
		"plugins.call_timeout":    "5s",
		"plugins.start_timeout":   "10s",
		"plugins.command_timeout": "30s",
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-format":      "log.format",
	"log-level":       "log.level",
	"log-file":        "log.file",
	"metrics-addr":    "metrics.addr",
	"plugins-dir":     "plugins.dir",
	"include":         "plugins.include",
	"exclude":         "plugins.exclude",
	"autoload":        "plugins.autoload",
	"call-timeout":    "plugins.call_timeout",
	"start-timeout":   "plugins.start_timeout",
	"command-timeout": "plugins.command_timeout",
}

// BindFlags registers the flags Load reads overrides from. Flag defaults are
// informational; only flags set on the command line override the file.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("log-format", logging.FormatJSON, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "log file (default: stderr, or the state directory when the TUI runs)")
	fs.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	fs.String("plugins-dir", "", "plugin directory (default: XDG_DATA_HOME/paneplug/plugins)")
	fs.StringSlice("include", nil, "only load plugins whose name matches one of these globs")
	fs.StringSlice("exclude", nil, "skip plugins whose name matches one of these globs")
	fs.Bool("autoload", true, "load every plugin found in the plugin directory")
	fs.Duration("call-timeout", 5*time.Second, "timeout for each call into a binary or Lua plugin")
	fs.Duration("start-timeout", 10*time.Second, "timeout for a binary plugin to start")
	fs.Duration("command-timeout", 30*time.Second, "timeout for each plugin command")
}

// Load builds the configuration. path names a YAML file that must exist;
// when empty, defaultPath is read if it exists. flags may be nil.
func Load(path, defaultPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.In("config").Wrapf(err, "load defaults")
	}

	switch {
	case path != "":
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.In("config").With("path", path).Wrapf(err, "load config file")
		}
	case defaultPath != "":
		if _, err := os.Stat(defaultPath); err == nil {
			if err := k.Load(file.Provider(defaultPath), yaml.Parser()); err != nil {
				return nil, oops.In("config").With("path", defaultPath).Wrapf(err, "load config file")
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.In("config").With("path", defaultPath).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Wrapf(err, "decode config")
	}
	return &cfg, nil
}

// Validate checks formats, levels, globs, timeouts and entries.
func (c *Config) Validate() error {
	var errs []error

	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		errs = append(errs, fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := plugins.NewFilter(c.Plugins.Include, c.Plugins.Exclude); err != nil {
		errs = append(errs, fmt.Errorf("plugins filter: %w", err))
	}

	for name, d := range map[string]time.Duration{
		"plugins.call_timeout":    c.Plugins.CallTimeout,
		"plugins.start_timeout":   c.Plugins.StartTimeout,
		"plugins.command_timeout": c.Plugins.CommandTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	seen := make(map[int]bool)
	for i, e := range c.Plugins.Entries {
		if e.Path == "" {
			errs = append(errs, fmt.Errorf("plugins.entries[%d].path is required", i))
		}
		if e.ID == nil {
			continue
		}
		if *e.ID < 0 || *e.ID > int(^plugins.ID(0)) {
			errs = append(errs, fmt.Errorf("plugins.entries[%d].id %d is out of range", i, *e.ID))
		}
		if seen[*e.ID] {
			errs = append(errs, fmt.Errorf("plugins.entries[%d].id %d is used twice", i, *e.ID))
		}
		seen[*e.ID] = true
	}

	if len(errs) > 0 {
		return oops.Code(CodeInvalidConfig).In("config").Wrap(errors.Join(errs...))
	}
	return nil
}
