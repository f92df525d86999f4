// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package observability

import (
	"cmp"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	plugins "github.com/paneplug/paneplug/internal/plugin"
)

// Load outcomes recorded in the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

const unknownRuntime = "unknown"

// Metrics contains the plugin host's Prometheus metrics. It implements
// plugins.Observer so a Registry reports into it directly, and keeps the
// loaded entries so they can be read from other goroutines.
type Metrics struct {
	LoadsTotal    *prometheus.CounterVec
	PluginsLoaded prometheus.Gauge
	UpdatesTotal  *prometheus.CounterVec
	CommandsTotal *prometheus.CounterVec

	mu     sync.Mutex
	loaded map[plugins.ID]plugins.Entry
}

var _ plugins.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the plugin metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paneplug_plugin_loads_total",
				Help: "Total number of plugin loads by runtime and status",
			},
			[]string{"runtime", "status"},
		),
		PluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paneplug_plugins_loaded",
			Help: "Number of plugins currently loaded",
		}),
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paneplug_plugin_updates_total",
				Help: "Total number of messages delivered to plugins",
			},
			[]string{"plugin"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paneplug_plugin_commands_total",
				Help: "Total number of commands returned by plugins",
			},
			[]string{"plugin"},
		),
		loaded: make(map[plugins.ID]plugins.Entry),
	}

	reg.MustRegister(m.LoadsTotal, m.PluginsLoaded, m.UpdatesTotal, m.CommandsTotal)
	return m
}

// PluginLoaded implements plugins.Observer.
func (m *Metrics) PluginLoaded(e plugins.Entry) {
	m.LoadsTotal.WithLabelValues(e.Runtime, StatusOK).Inc()
	m.PluginsLoaded.Inc()

	m.mu.Lock()
	m.loaded[e.ID] = e
	m.mu.Unlock()
}

// PluginLoadFailed implements plugins.Observer. The runtime label is the one
// path would have been loaded with, when it can still be detected.
func (m *Metrics) PluginLoadFailed(path string, _ error) {
	runtime := unknownRuntime
	if t, _, err := plugins.Detect(path); err == nil {
		runtime = string(t)
	}
	m.LoadsTotal.WithLabelValues(runtime, StatusError).Inc()
}

// PluginUnloaded implements plugins.Observer.
func (m *Metrics) PluginUnloaded(e plugins.Entry) {
	m.PluginsLoaded.Dec()

	m.mu.Lock()
	delete(m.loaded, e.ID)
	m.mu.Unlock()
}

// Loaded returns the loaded entries ordered by id.
func (m *Metrics) Loaded() []plugins.Entry {
	m.mu.Lock()
	out := make([]plugins.Entry, 0, len(m.loaded))
	for _, e := range m.loaded {
		out = append(out, e)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b plugins.Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// PluginUpdated implements plugins.Observer.
func (m *Metrics) PluginUpdated(e plugins.Entry, commands int) {
	m.UpdatesTotal.WithLabelValues(e.Name).Inc()
	m.CommandsTotal.WithLabelValues(e.Name).Add(float64(commands))
}
