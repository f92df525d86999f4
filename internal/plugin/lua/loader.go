// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package lua

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Runtime is the runtime name reported by Lua modules.
const Runtime = string(plugins.TypeLua)

// EntryFunction is the global every Lua plugin script must define. It is
// called once and returns the plugin table.
const EntryFunction = "new_plugin"

// DefaultCallTimeout bounds every call into a script.
const DefaultCallTimeout = time.Second

// Loader runs Lua plugin scripts, one sandboxed state per module.
type Loader struct {
	states      *StateFactory
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithCallTimeout bounds each call into a script.
func WithCallTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.callTimeout = d
		}
	}
}

// WithLogger sets the logger for runtime diagnostics and script print output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Lua plugin loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.states = NewStateFactory(l.logger.With("runtime", Runtime))
	return l
}

// Load implements plugins.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*plugins.Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, plugins.CannotOpen(path, err)
	}
	code, err := os.ReadFile(abs) // #nosec G304 -- abs comes from the operator's plugin directory or command line
	if err != nil {
		return nil, plugins.CannotOpen(abs, err)
	}

	L, err := l.states.NewState(ctx)
	if err != nil {
		return nil, plugins.CannotOpen(abs, err)
	}
	st := &state{path: abs, L: L}

	if err := l.run(ctx, L, code, filepath.Base(abs)); err != nil {
		return nil, errors.Join(plugins.CannotOpen(abs, err), st.Release())
	}

	entry, ok := L.GetGlobal(EntryFunction).(*lua.LFunction)
	if !ok {
		return nil, errors.Join(
			plugins.MissingEntryPoint(abs, EntryFunction, fmt.Errorf("global %s is not a function", EntryFunction)),
			st.Release(),
		)
	}

	inst, err := plugins.Instantiate(abs, func() pluginpkg.Plugin {
		p := &instance{
			L:       L,
			timeout: l.callTimeout,
			logger:  l.logger.With("path", abs),
			stem:    strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		}
		self, err := p.callFunc(entry)
		if err != nil {
			panic(err)
		}
		if self == lua.LNil {
			return nil
		}
		t, ok := self.(*lua.LTable)
		if !ok {
			panic(fmt.Sprintf("%s returned %s, want table", EntryFunction, self.Type()))
		}
		p.self = t
		return p
	})
	if err != nil {
		return nil, errors.Join(err, st.Release())
	}

	l.logger.DebugContext(ctx, "loaded lua plugin", "path", abs)
	return plugins.NewModule(Runtime, st, inst), nil
}

// run executes the script's top level under the call timeout.
func (l *Loader) run(ctx context.Context, L *lua.LState, code []byte, name string) error {
	fn, err := L.Load(bytes.NewReader(code), name)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	L.Push(fn)
	return L.PCall(0, 0, nil)
}

// state is the library handle of a Lua module: releasing it closes the VM.
type state struct {
	path   string
	L      *lua.LState
	closed atomic.Bool
}

func (s *state) Path() string { return s.path }

func (s *state) Release() error {
	if !s.closed.CompareAndSwap(false, true) {
		return oops.In("lua").With("path", s.path).Errorf("state already closed")
	}
	s.L.Close()
	return nil
}
