// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package main is a counter built as a Go shared object.
//
// Build with:
//
//	go build -buildmode=plugin -o plugins/counter/counter.so ./plugins/counter
package main

import "github.com/paneplug/paneplug/pkg/plugin"

type msg int

const (
	increment msg = iota
	decrement
	reset
)

// Counter counts button presses.
type Counter struct {
	plugin.Base
	value int
}

// NewPlugin is the entry point the host looks up.
func NewPlugin() plugin.Plugin { return &Counter{} }

// Name implements plugin.Plugin.
func (c *Counter) Name() string { return "counter" }

// Version implements plugin.Plugin.
func (c *Counter) Version() string { return "1.1.0" }

// View implements plugin.Plugin.
func (c *Counter) View() plugin.Node {
	resetMsg := plugin.Wrap(reset)
	if c.value == 0 {
		resetMsg = plugin.Envelope{}
	}
	return plugin.Column(
		plugin.Textf("Count: %d", c.value),
		plugin.Row(
			plugin.Button("Add", plugin.Wrap(increment)),
			plugin.Button("Remove", plugin.Wrap(decrement)),
			plugin.Button("Reset", resetMsg),
		),
	)
}

// Update implements plugin.Plugin.
func (c *Counter) Update(env plugin.Envelope) []plugin.Command {
	m, ok := plugin.As[msg](env)
	if !ok {
		return nil
	}
	switch m {
	case increment:
		c.value++
	case decrement:
		c.value--
	case reset:
		c.value = 0
	}
	return nil
}

func main() {}
