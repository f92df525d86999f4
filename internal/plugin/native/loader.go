// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package native loads plugins built with -buildmode=plugin.
package native

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	stdplugin "plugin"
	"sync/atomic"

	"github.com/samber/oops"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Runtime is the runtime name reported by native modules.
const Runtime = "native"

// LibraryFilename returns the platform library filename for path. A path
// without an extension gets ".so"; anything else is returned unchanged.
func LibraryFilename(path string) string {
	if filepath.Ext(path) == "" {
		return path + plugins.NativeExt
	}
	return path
}

// Image is an opened library that can resolve exported symbols.
// *plugin.Plugin implements it.
type Image interface {
	Lookup(symbol string) (stdplugin.Symbol, error)
}

// Opener opens the library at path.
type Opener func(path string) (Image, error)

func openGoPlugin(path string) (Image, error) {
	return stdplugin.Open(path)
}

// Loader opens Go plugin libraries and instantiates their entry point.
type Loader struct {
	open   Opener
	logger *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener replaces plugin.Open, for tests.
func WithOpener(open Opener) Option {
	return func(l *Loader) {
		if open != nil {
			l.open = open
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a native loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{open: openGoPlugin, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements plugins.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*plugins.Module, error) {
	filename := LibraryFilename(path)
	if abs, err := filepath.Abs(filename); err == nil {
		filename = abs
	}

	img, err := l.open(filename)
	if err != nil {
		return nil, plugins.CannotOpen(filename, err)
	}
	lib := &library{path: filename}

	sym, err := img.Lookup(pluginpkg.EntryPoint)
	if err != nil {
		return nil, errors.Join(
			plugins.MissingEntryPoint(filename, pluginpkg.EntryPoint, err),
			lib.Release(),
		)
	}

	entry, err := entryPoint(sym)
	if err != nil {
		return nil, errors.Join(
			plugins.MissingEntryPoint(filename, pluginpkg.EntryPoint, err),
			lib.Release(),
		)
	}

	inst, err := plugins.Instantiate(filename, entry)
	if err != nil {
		return nil, errors.Join(err, lib.Release())
	}

	l.logger.DebugContext(ctx, "opened native plugin", "path", filename)
	return plugins.NewModule(Runtime, lib, inst), nil
}

// entryPoint accepts the exported function itself or a variable holding it.
func entryPoint(sym stdplugin.Symbol) (pluginpkg.Factory, error) {
	switch f := sym.(type) {
	case func() pluginpkg.Plugin:
		return f, nil
	case *func() pluginpkg.Plugin:
		if f == nil || *f == nil {
			return nil, fmt.Errorf("symbol %s is a nil function variable", pluginpkg.EntryPoint)
		}
		return *f, nil
	default:
		return nil, fmt.Errorf("symbol %s has type %T, want func() plugin.Plugin", pluginpkg.EntryPoint, sym)
	}
}

// library is the handle for a mapped Go plugin. The Go runtime never unmaps
// plugin images, so Release only retires the handle.
type library struct {
	path     string
	released atomic.Bool
}

func (l *library) Path() string { return l.path }

func (l *library) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return oops.In("native").With("path", l.path).Errorf("library already released")
	}
	return nil
}
