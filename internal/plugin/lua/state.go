// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package lua runs plugins written in Lua on a sandboxed gopher-lua state.
package lua

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// safeLibrary represents a Lua library that is safe to load in sandboxed state.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries returns the list of libraries safe to load.
// Safe: base, table, string, math.
// Blocked: os, io, debug, package.
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions lists base library functions that reach the filesystem.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

// StateFactory creates sandboxed Lua states with only safe libraries and the
// ui module.
type StateFactory struct {
	// libraries allows overriding the default safe libraries for testing.
	libraries []safeLibrary
	logger    *slog.Logger
}

// NewStateFactory creates a new state factory. print output goes to logger.
func NewStateFactory(logger *slog.Logger) *StateFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateFactory{
		libraries: defaultSafeLibraries(),
		logger:    logger,
	}
}

// NewState creates a fresh Lua state.
//
// Only base, table, string and math are opened, and dofile, loadfile,
// loadstring and load are removed from base. print writes to the factory's
// logger because the terminal belongs to the host UI. The global tables ui
// and cmd build render trees and commands.
func (f *StateFactory) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	L.SetContext(ctx)

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("failed to open library %s: %w", lib.name, err)
		}
	}

	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(f.print))
	openUI(L)
	openCmd(L)

	L.RemoveContext()
	return L, nil
}

func (f *StateFactory) print(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	logger := f.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("lua print", "message", strings.Join(parts, "\t"))
	return 0
}
