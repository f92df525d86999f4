// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package main is a clock served as a separate process over gRPC.
//
// Build with:
//
//	go build -o plugins/clock/clock ./plugins/clock
package main

import (
	"time"

	"github.com/paneplug/paneplug/pkg/plugin"
	"github.com/paneplug/paneplug/pkg/pluginsdk"
)

type (
	tick      time.Time
	toggle    struct{}
	lap       struct{}
	clearLaps struct{}
	flash     struct{}
)

// Clock shows the time, ticking every second while running.
type Clock struct {
	plugin.Base
	now     time.Time
	running bool
	laps    []time.Time
	flashed bool
}

func newClock() *Clock {
	return &Clock{now: time.Now(), running: true}
}

// Name implements plugin.Plugin.
func (c *Clock) Name() string { return "clock" }

// Version implements plugin.Plugin.
func (c *Clock) Version() string { return "1.0.0" }

// View implements plugin.Plugin.
func (c *Clock) View() plugin.Node {
	label := "Pause"
	if !c.running {
		label = "Resume"
	}
	header := c.now.Format(time.TimeOnly)
	if c.flashed {
		header += " *"
	}

	lapNodes := make([]plugin.Node, 0, len(c.laps))
	for i, t := range c.laps {
		lapNodes = append(lapNodes, plugin.Textf("lap %d  %s", i+1, t.Format(time.TimeOnly)))
	}
	clearMsg := plugin.Envelope{}
	if len(c.laps) > 0 {
		clearMsg = plugin.Wrap(clearLaps{})
	}

	return plugin.Column(
		plugin.Text(header),
		plugin.Row(
			plugin.Button(label, plugin.Wrap(toggle{})),
			plugin.Button("Lap", plugin.Wrap(lap{})),
			plugin.Button("Clear", clearMsg),
		),
		plugin.Column(lapNodes...),
	)
}

// Update implements plugin.Plugin.
func (c *Clock) Update(env plugin.Envelope) []plugin.Command {
	if t, ok := plugin.As[tick](env); ok {
		c.now = time.Time(t)
		return nil
	}
	switch {
	case plugin.Is[toggle](env):
		c.running = !c.running
	case plugin.Is[lap](env):
		c.laps = append(c.laps, c.now)
		c.flashed = true
		return []plugin.Command{plugin.After(500*time.Millisecond, plugin.Wrap(flash{}))}
	case plugin.Is[flash](env):
		c.flashed = false
	case plugin.Is[clearLaps](env):
		c.laps = nil
	}
	return nil
}

// Subscription implements plugin.Plugin. Pausing drops the subscription.
func (c *Clock) Subscription() *plugin.Subscription {
	if !c.running {
		return nil
	}
	return plugin.Every("tick", time.Second, func(t time.Time) plugin.Envelope {
		return plugin.Wrap(tick(t))
	})
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{Plugin: newClock()})
}
