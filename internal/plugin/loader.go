// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package plugin loads plugin modules, pairs each instance with the library
// that produced it, and routes messages to instances by id.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Library is a loaded module image: a mapped shared object, a plugin process,
// or an interpreter state. Instances produced from it are only valid until
// Release is called.
type Library interface {
	// Path returns the resolved location the library was loaded from.
	Path() string
	// Release frees the image. It is called exactly once, after the instance
	// has been dropped.
	Release() error
}

// Loader opens a module and instantiates its plugin.
type Loader interface {
	Load(ctx context.Context, path string) (*Module, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*Module, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, path string) (*Module, error) {
	return f(ctx, path)
}

// Module owns a plugin instance together with the library that produced it.
//
// The pair cannot be split: the instance is reachable only through Module
// methods, and Close drops the instance before releasing the library.
type Module struct {
	runtime  string
	path     string
	lib      Library
	instance pluginpkg.Plugin
	closed   bool
}

// NewModule binds instance to lib. Runtimes call it once per successful load.
func NewModule(runtime string, lib Library, instance pluginpkg.Plugin) *Module {
	return &Module{
		runtime:  runtime,
		path:     lib.Path(),
		lib:      lib,
		instance: instance,
	}
}

// Runtime names the loader that produced the module.
func (m *Module) Runtime() string { return m.runtime }

// Path returns the library path.
func (m *Module) Path() string { return m.path }

// Closed reports whether Close has been called.
func (m *Module) Closed() bool { return m.closed }

// Name returns the instance name, or the Go type name when it reports none.
func (m *Module) Name() string {
	if m.closed {
		return ""
	}
	return pluginpkg.NameOf(m.instance)
}

// Version returns the instance version.
func (m *Module) Version() string {
	if m.closed {
		return ""
	}
	return m.instance.Version()
}

// View forwards to the instance.
func (m *Module) View() pluginpkg.Node {
	if m.closed {
		return pluginpkg.Node{}
	}
	return m.instance.View()
}

// Update forwards to the instance.
func (m *Module) Update(msg pluginpkg.Envelope) []pluginpkg.Command {
	if m.closed {
		return nil
	}
	return m.instance.Update(msg)
}

// Subscription forwards to the instance.
func (m *Module) Subscription() *pluginpkg.Subscription {
	if m.closed {
		return nil
	}
	return m.instance.Subscription()
}

// Close drops the instance, closing it first if it implements io.Closer,
// and then releases the library. Both steps run even if the first fails.
// Calling Close again is a no-op.
func (m *Module) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if c, ok := m.instance.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close instance: %w", err))
		}
	}
	m.instance = nil

	if err := m.lib.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release library %s: %w", m.path, err))
	}
	m.lib = nil

	return errors.Join(errs...)
}

// Instantiate calls the entry point of the module at path exactly once.
//
// This is the only place the host runs foreign code it has not verified.
// A panic or a nil result is reported as ErrInvalidInstance; anything else
// the entry point does is trusted.
func Instantiate(path string, entry pluginpkg.Factory) (p pluginpkg.Plugin, err error) {
	if entry == nil {
		return nil, MissingEntryPoint(path, pluginpkg.EntryPoint, errors.New("entry point is nil"))
	}

	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = InvalidInstance(path, fmt.Errorf("entry point panicked: %v", r))
		}
	}()

	p = entry()
	if isNil(p) {
		return nil, InvalidInstance(path, nil)
	}
	return p, nil
}

func isNil(p pluginpkg.Plugin) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
