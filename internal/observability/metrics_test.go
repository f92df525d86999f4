// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/plugintest"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

func TestMetrics_ObservesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	loader := plugintest.NewLoader().
		Add("a", plugintest.NewCounter("a", nil)).
		Add("echo", func() pluginpkg.Plugin { return &plugintest.Echo{} })
	r := plugins.NewRegistry(loader, plugins.WithObserver(m))

	a, err := r.Load(context.Background(), "a")
	require.NoError(t, err)
	echo, err := r.Load(context.Background(), "echo")
	require.NoError(t, err)
	_, err = r.Load(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues(plugintest.Runtime, StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues(unknownRuntime, StatusError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PluginsLoaded))

	view, ok := r.View(a)
	require.True(t, ok)
	btn, ok := view.Find("Add")
	require.True(t, ok)
	msg, ok := plugins.Untag(btn.OnPress)
	require.True(t, ok)
	r.Update(context.Background(), msg.ID, msg.Envelope.Clone())

	view, ok = r.View(echo)
	require.True(t, ok)
	btn, ok = view.Find("Ping")
	require.True(t, ok)
	msg, ok = plugins.Untag(btn.OnPress)
	require.True(t, ok)
	assert.Len(t, r.Update(context.Background(), msg.ID, msg.Envelope.Clone()), 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("counter")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("counter")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("echo")))

	require.NoError(t, r.Unload(a))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginsLoaded))
	require.NoError(t, r.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PluginsLoaded))
}

func TestMetrics_FailedLoadDetectsRuntime(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	path := filepath.Join(t.TempDir(), "broken.lua")
	require.NoError(t, os.WriteFile(path, []byte("error()"), 0o600))

	m.PluginLoadFailed(path, assert.AnError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues(string(plugins.TypeLua), StatusError)))
}
