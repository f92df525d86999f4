// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/paneplug/paneplug/pkg/errutil"
)

// DiscoveredPlugin contains a manifest and its directory.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Filter selects discovered plugins by name.
//
// Patterns use gobwas/glob with '-' as the segment separator, so "clock-*"
// matches "clock-utc" but not "clock-utc-debug", while "clock-**" matches both.
// A plugin is kept when it matches any include pattern (or there are none)
// and no exclude pattern.
type Filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewFilter compiles include and exclude patterns.
func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}
	var err error
	if f.include, err = compileAll(include); err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	if f.exclude, err = compileAll(exclude); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return f, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("pattern %d is empty", i)
		}
		g, err := glob.Compile(p, '-')
		if err != nil {
			return nil, fmt.Errorf("pattern %d (%q): %w", i, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Match reports whether name passes the filter. A nil filter matches all.
func (f *Filter) Match(name string) bool {
	if f == nil {
		return true
	}
	for _, g := range f.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Discover finds all valid plugins in dir that pass filter.
// Invalid plugins are logged and skipped; a missing dir yields no plugins.
func Discover(_ context.Context, dir string, filter *Filter) ([]*DiscoveredPlugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		manifest, err := ReadManifest(pluginDir)
		if err != nil {
			slog.Warn("skipping plugin with missing or invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if !filter.Match(manifest.Name) {
			slog.Debug("plugin filtered out", "plugin", manifest.Name)
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}

	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins, nil
}

// LoadResult records the outcome of loading one discovered plugin.
type LoadResult struct {
	Plugin *DiscoveredPlugin
	ID     ID
	Err    error
}

// LoadAll loads every discovered plugin into r.
//
// Individual failures are logged and recorded in the results but do not
// stop the remaining loads. Plugins whose manifest pins an id are loaded
// first so auto-assigned ids cannot take them.
func LoadAll(ctx context.Context, r *Registry, plugins []*DiscoveredPlugin) []LoadResult {
	ordered := make([]*DiscoveredPlugin, len(plugins))
	copy(ordered, plugins)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Manifest.ID != nil && ordered[j].Manifest.ID == nil
	})

	results := make([]LoadResult, 0, len(ordered))
	for _, dp := range ordered {
		var (
			id  ID
			err error
		)
		if dp.Manifest.ID != nil {
			id, err = r.LoadWithID(ctx, *dp.Manifest.ID, dp.Dir)
		} else {
			id, err = r.Load(ctx, dp.Dir)
		}
		if err != nil {
			errutil.LogError(ctx, r.logger, "failed to load plugin", err,
				"plugin", dp.Manifest.Name,
				"dir", dp.Dir)
		}
		results = append(results, LoadResult{Plugin: dp, ID: id, Err: err})
	}
	return results
}
