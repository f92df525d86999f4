// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/plugintest"
	"github.com/paneplug/paneplug/pkg/errutil"
)

func TestDetect(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "counter.so"), []byte("ELF"))
	writeFile(t, filepath.Join(dir, "main.lua"), []byte("return {}"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clock"), []byte("#!/bin/sh\n"), 0o700))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))

	luaDir := filepath.Join(dir, "counter-lua")
	mkdirAll(t, luaDir)
	writeFile(t, filepath.Join(luaDir, plugins.ManifestFile), []byte("name: counter-lua\nversion: 1.0.0\ntype: lua\nentry: main.lua\n"))

	tests := []struct {
		name      string
		path      string
		wantType  plugins.Type
		wantEntry string
	}{
		{name: "shared object", path: filepath.Join(dir, "counter.so"), wantType: plugins.TypeNative, wantEntry: filepath.Join(dir, "counter.so")},
		{name: "bare native name", path: filepath.Join(dir, "counter"), wantType: plugins.TypeNative, wantEntry: filepath.Join(dir, "counter")},
		{name: "lua script", path: filepath.Join(dir, "main.lua"), wantType: plugins.TypeLua, wantEntry: filepath.Join(dir, "main.lua")},
		{name: "executable", path: filepath.Join(dir, "clock"), wantType: plugins.TypeBinary, wantEntry: filepath.Join(dir, "clock")},
		{name: "manifest directory", path: luaDir, wantType: plugins.TypeLua, wantEntry: filepath.Join(luaDir, "main.lua")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, entry, err := plugins.Detect(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantEntry, entry)
		})
	}
}

func TestDetect_BundledPlugins(t *testing.T) {
	root := filepath.Join("..", "..", "plugins")
	tests := []struct {
		dir       string
		wantType  plugins.Type
		wantEntry string
	}{
		{dir: "counter", wantType: plugins.TypeNative, wantEntry: "counter.so"},
		{dir: "clock", wantType: plugins.TypeBinary, wantEntry: "clock"},
		{dir: "counter-lua", wantType: plugins.TypeLua, wantEntry: "main.lua"},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			dir := filepath.Join(root, tt.dir)
			m, err := plugins.ReadManifest(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.dir, m.Name)

			typ, entry, err := plugins.Detect(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, filepath.Join(dir, tt.wantEntry), entry)
		})
	}
}

func TestDetect_BuildOutputWithoutManifest(t *testing.T) {
	dir := t.TempDir()

	native := filepath.Join(dir, "counter")
	mkdirAll(t, native)
	writeFile(t, filepath.Join(native, "counter.so"), []byte("ELF"))

	binary := filepath.Join(dir, "clock")
	mkdirAll(t, binary)
	require.NoError(t, os.WriteFile(filepath.Join(binary, "clock"), []byte("#!/bin/sh\n"), 0o700))

	typ, entry, err := plugins.Detect(native)
	require.NoError(t, err)
	assert.Equal(t, plugins.TypeNative, typ)
	assert.Equal(t, filepath.Join(native, "counter.so"), entry)

	typ, entry, err = plugins.Detect(binary)
	require.NoError(t, err)
	assert.Equal(t, plugins.TypeBinary, typ)
	assert.Equal(t, filepath.Join(binary, "clock"), entry)

	broken := filepath.Join(dir, "broken")
	mkdirAll(t, broken)
	writeFile(t, filepath.Join(broken, plugins.ManifestFile), []byte("name: [\n"))
	writeFile(t, filepath.Join(broken, "broken.so"), []byte("ELF"))
	_, _, err = plugins.Detect(broken)
	assert.ErrorIs(t, err, plugins.ErrCannotOpen, "an invalid manifest is not bypassed")
}

func TestDetect_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))
	mkdirAll(t, filepath.Join(dir, "empty"))

	_, _, err := plugins.Detect(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, plugins.ErrCannotOpen)

	_, _, err = plugins.Detect(filepath.Join(dir, "empty"))
	assert.ErrorIs(t, err, plugins.ErrCannotOpen)

	_, _, err = plugins.Detect(filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, plugins.ErrUnknownRuntime)
	errutil.AssertErrorCode(t, err, plugins.CodeUnknownRuntime)
}

func TestMultiLoader_DispatchesByRuntime(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.lua")
	writeFile(t, script, []byte("return {}"))
	lib := filepath.Join(dir, "counter.so")
	writeFile(t, lib, []byte("ELF"))

	lua := plugintest.NewLoader()
	lua.Add(script, plugintest.NewCounter("lua", lua.Journal))

	ml := plugins.NewMultiLoader().Register(plugins.TypeLua, lua)
	assert.ElementsMatch(t, []plugins.Type{plugins.TypeLua}, ml.Runtimes())

	mod, err := ml.Load(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, script, mod.Path())
	require.NoError(t, mod.Close())

	_, err = ml.Load(context.Background(), lib)
	require.Error(t, err)
	assert.ErrorIs(t, err, plugins.ErrUnknownRuntime)
	errutil.AssertErrorContext(t, err, "runtime", string(plugins.TypeNative))
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		match   map[string]bool
	}{
		{
			name:  "no patterns matches all",
			match: map[string]bool{"counter": true, "clock-utc": true},
		},
		{
			name:    "single star stays within a segment",
			include: []string{"clock-*"},
			match:   map[string]bool{"clock-utc": true, "clock-utc-debug": false, "counter": false},
		},
		{
			name:    "double star crosses segments",
			include: []string{"clock-**"},
			match:   map[string]bool{"clock-utc": true, "clock-utc-debug": true},
		},
		{
			name:    "exclude wins",
			include: []string{"*"},
			exclude: []string{"*-debug"},
			match:   map[string]bool{"counter": true, "clock-debug": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := plugins.NewFilter(tt.include, tt.exclude)
			require.NoError(t, err)
			for name, want := range tt.match {
				assert.Equal(t, want, f.Match(name), name)
			}
		})
	}

	var nilFilter *plugins.Filter
	assert.True(t, nilFilter.Match("anything"))
}

func TestFilter_InvalidPatterns(t *testing.T) {
	_, err := plugins.NewFilter([]string{""}, nil)
	assert.ErrorContains(t, err, "include")

	_, err = plugins.NewFilter(nil, []string{"[unclosed"})
	assert.ErrorContains(t, err, "exclude")
}

func TestDiscover_MissingDirectory(t *testing.T) {
	found, err := plugins.Discover(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscover_AppliesFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"clock-utc", "clock-utc-debug", "counter"} {
		pluginDir := filepath.Join(dir, name)
		mkdirAll(t, pluginDir)
		writeFile(t, filepath.Join(pluginDir, plugins.ManifestFile),
			[]byte("name: "+name+"\nversion: 1.0.0\ntype: binary\nentry: "+name+"\n"))
	}

	f, err := plugins.NewFilter([]string{"clock-*"}, nil)
	require.NoError(t, err)
	found, err := plugins.Discover(context.Background(), dir, f)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "clock-utc", found[0].Manifest.Name)
}
