// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// NativeExt is the file extension of Go plugin libraries.
const NativeExt = ".so"

// Detect decides which runtime handles path and returns the path that
// runtime should open.
//
//   - a directory is read through its plugin.yaml manifest, or without one
//     holds a build output named after it ("dir/dir.so" or "dir/dir");
//   - ".lua" files are Lua plugins;
//   - ".so" files, and bare paths with a ".so" sibling, are native plugins;
//   - any other executable file is a binary plugin.
func Detect(path string) (Type, string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) && filepath.Ext(path) == "" {
		if _, serr := os.Stat(path + NativeExt); serr == nil {
			return TypeNative, path, nil
		}
	}
	if err != nil {
		return "", "", CannotOpen(path, err)
	}

	if info.IsDir() {
		m, err := ReadManifest(path)
		if errors.Is(err, fs.ErrNotExist) {
			if t, entry, ok := detectBuildOutput(path); ok {
				return t, entry, nil
			}
		}
		if err != nil {
			return "", "", CannotOpen(path, err)
		}
		return m.Type, m.EntryPath(path), nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return TypeLua, path, nil
	case NativeExt:
		return TypeNative, path, nil
	}

	if info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
		return TypeBinary, path, nil
	}
	return "", "", oops.Code(CodeUnknownRuntime).
		In("plugin").
		With("path", path).
		Wrap(ErrUnknownRuntime)
}

// detectBuildOutput finds a plugin built into dir under the directory's own
// name.
func detectBuildOutput(dir string) (Type, string, bool) {
	base := filepath.Join(dir, filepath.Base(filepath.Clean(dir)))
	if info, err := os.Stat(base + NativeExt); err == nil && info.Mode().IsRegular() {
		return TypeNative, base + NativeExt, true
	}
	if info, err := os.Stat(base); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
		return TypeBinary, base, true
	}
	return "", "", false
}

// MultiLoader dispatches to a runtime chosen by Detect.
type MultiLoader struct {
	loaders map[Type]Loader
}

// NewMultiLoader creates a loader with no runtimes registered.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{loaders: make(map[Type]Loader)}
}

// Register installs the loader for t, replacing any previous one.
func (m *MultiLoader) Register(t Type, l Loader) *MultiLoader {
	m.loaders[t] = l
	return m
}

// Runtimes returns the registered runtime types.
func (m *MultiLoader) Runtimes() []Type {
	out := make([]Type, 0, len(m.loaders))
	for t := range m.loaders {
		out = append(out, t)
	}
	return out
}

// Load implements Loader.
func (m *MultiLoader) Load(ctx context.Context, path string) (*Module, error) {
	t, entry, err := Detect(path)
	if err != nil {
		return nil, err
	}

	l, ok := m.loaders[t]
	if !ok {
		return nil, oops.Code(CodeUnknownRuntime).
			In("plugin").
			With("path", path).
			With("runtime", string(t)).
			Wrap(ErrUnknownRuntime)
	}
	return l.Load(ctx, entry)
}
