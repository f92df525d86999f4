// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package plugin defines the contract between the paneplug host and the
// modules it loads at runtime.
//
// A native module is a Go program built with -buildmode=plugin that exports
//
//	func NewPlugin() plugin.Plugin
//
// The host resolves that one symbol, calls it once, and drives the returned
// instance through View and Update. Messages travel in an Envelope so neither
// side needs the other's concrete message type.
//
// Example:
//
//	type Counter struct {
//		plugin.Base
//		n int
//	}
//
//	type msg int
//
//	const (
//		add msg = iota
//		remove
//	)
//
//	func (c *Counter) View() plugin.Node {
//		return plugin.Column(
//			plugin.Button("Add", plugin.Wrap(add)),
//			plugin.Button("Remove", plugin.Wrap(remove)),
//			plugin.Textf("%d", c.n),
//		)
//	}
//
//	func (c *Counter) Update(m plugin.Envelope) []plugin.Command {
//		switch v, _ := plugin.As[msg](m); v { ... }
//		return nil
//	}
//
//	func NewPlugin() plugin.Plugin { return &Counter{} }
package plugin

import (
	"fmt"
	"strings"
)

// EntryPoint is the name of the symbol every native module must export.
const EntryPoint = "NewPlugin"

// DefaultVersion is reported by plugins that embed Base.
const DefaultVersion = "1.0.0"

// Factory is the signature of the exported entry point.
// It is an alias so a looked-up symbol asserts to it directly.
type Factory = func() Plugin

// Plugin is implemented by every loaded instance.
//
// The host calls View and Update from a single goroutine. Update is the only
// method allowed to mutate plugin state.
type Plugin interface {
	// View describes what to display. Interactive elements carry envelopes of
	// the plugin's own message type.
	View() Node

	// Update handles a message. Messages of an unexpected type must be
	// ignored. The returned commands run asynchronously and their results
	// come back as further Update calls.
	Update(msg Envelope) []Command

	// Subscription declares a long-lived source of messages, or nil.
	Subscription() *Subscription

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version. It is informational only; the host
	// never uses it for compatibility decisions.
	Version() string
}

// Base provides defaults for the optional parts of Plugin.
// Embed it and implement View and Update.
type Base struct{}

// Subscription returns nil.
func (Base) Subscription() *Subscription { return nil }

// Name returns an empty name; hosts substitute the Go type name.
func (Base) Name() string { return "" }

// Version returns DefaultVersion.
func (Base) Version() string { return DefaultVersion }

// NameOf returns p.Name(), falling back to the dynamic type name of p.
func NameOf(p Plugin) string {
	if p == nil {
		return ""
	}
	if name := p.Name(); name != "" {
		return name
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", p), "*")
}
