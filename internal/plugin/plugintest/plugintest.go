// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package plugintest provides an in-memory loader and fixture plugins for
// tests that exercise the registry without building shared libraries.
package plugintest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/pkg/plugin"
)

// Runtime is the runtime name reported by modules from Loader.
const Runtime = "memory"

// Journal records lifecycle events in order.
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event.
func (j *Journal) Record(event string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.events))
	copy(out, j.events)
	return out
}

// Library is a fake library handle that records its release.
type Library struct {
	path       string
	journal    *Journal
	released   atomic.Bool
	ReleaseErr error
}

// Path implements plugins.Library.
func (l *Library) Path() string { return l.path }

// Release implements plugins.Library. Releasing twice is an error.
func (l *Library) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return fmt.Errorf("library %s released twice", l.path)
	}
	l.journal.Record("release:" + l.path)
	return l.ReleaseErr
}

// Released reports whether Release has been called.
func (l *Library) Released() bool { return l.released.Load() }

// Loader serves plugins from registered factories instead of files.
type Loader struct {
	Journal *Journal

	mu        sync.Mutex
	factories map[string]plugin.Factory
	failures  map[string]error
	libraries map[string]*Library
	opened    []string
}

// NewLoader creates an empty loader with its own journal.
func NewLoader() *Loader {
	return &Loader{
		Journal:   &Journal{},
		factories: make(map[string]plugin.Factory),
		failures:  make(map[string]error),
		libraries: make(map[string]*Library),
	}
}

// Add registers the entry point served for path.
func (l *Loader) Add(path string, entry plugin.Factory) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[path] = entry
	return l
}

// FailRelease makes the library loaded from path fail on Release.
func (l *Loader) FailRelease(path string, err error) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[path] = err
	return l
}

// Opened returns every path Load was called with, in order.
func (l *Loader) Opened() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.opened))
	copy(out, l.opened)
	return out
}

// Library returns the most recent library loaded from path.
func (l *Loader) Library(path string) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.libraries[path]
}

// Load implements plugins.Loader.
func (l *Loader) Load(_ context.Context, path string) (*plugins.Module, error) {
	l.mu.Lock()
	l.opened = append(l.opened, path)
	entry, ok := l.factories[path]
	releaseErr := l.failures[path]
	l.mu.Unlock()

	if !ok {
		return nil, plugins.CannotOpen(path, fs.ErrNotExist)
	}

	lib := &Library{path: path, journal: l.Journal, ReleaseErr: releaseErr}
	inst, err := plugins.Instantiate(path, entry)
	if err != nil {
		return nil, errors.Join(err, lib.Release())
	}
	l.Journal.Record("open:" + path)

	l.mu.Lock()
	l.libraries[path] = lib
	l.mu.Unlock()

	return plugins.NewModule(Runtime, lib, inst), nil
}

// CounterMsg is the private message type of Counter.
type CounterMsg int

// Counter messages.
const (
	Add CounterMsg = iota
	Remove
)

// Counter is a fixture plugin with Add and Remove buttons.
// It records its drop in Journal when closed.
type Counter struct {
	plugin.Base
	Label   string
	Journal *Journal
	Value   int
}

// NewCounter returns an entry point producing counters that record into j.
func NewCounter(label string, j *Journal) plugin.Factory {
	return func() plugin.Plugin {
		return &Counter{Label: label, Journal: j}
	}
}

// Name implements plugin.Plugin.
func (c *Counter) Name() string { return "counter" }

// View implements plugin.Plugin.
func (c *Counter) View() plugin.Node {
	return plugin.Column(
		plugin.Button("Add", plugin.Wrap(Add)),
		plugin.Button("Remove", plugin.Wrap(Remove)),
		plugin.Textf("%d", c.Value),
	)
}

// Update implements plugin.Plugin.
func (c *Counter) Update(msg plugin.Envelope) []plugin.Command {
	m, err := plugin.Take[CounterMsg](&msg)
	if err != nil {
		return nil
	}
	switch m {
	case Add:
		c.Value++
	case Remove:
		c.Value--
	}
	return nil
}

// Close records the drop.
func (c *Counter) Close() error {
	c.Journal.Record("drop:" + c.Label)
	return nil
}

// Echo is a fixture plugin that answers every string message with commands
// that send the same string back, and emits "tick" from its subscription.
type Echo struct {
	plugin.Base
	Received []string
	SubKey   string
}

// Name implements plugin.Plugin.
func (e *Echo) Name() string { return "echo" }

// View implements plugin.Plugin.
func (e *Echo) View() plugin.Node {
	return plugin.Column(
		plugin.Button("Ping", plugin.Wrap("ping")),
		plugin.Textf("%d received", len(e.Received)),
	)
}

// Update implements plugin.Plugin.
func (e *Echo) Update(msg plugin.Envelope) []plugin.Command {
	s, ok := plugin.As[string](msg)
	if !ok {
		return nil
	}
	e.Received = append(e.Received, s)
	if s == "ping" {
		return []plugin.Command{
			plugin.Send(plugin.Wrap("pong")),
			nil,
			func(context.Context) plugin.Envelope { return plugin.Envelope{} },
		}
	}
	return nil
}

// Subscription implements plugin.Plugin.
func (e *Echo) Subscription() *plugin.Subscription {
	if e.SubKey == "" {
		return nil
	}
	return &plugin.Subscription{
		Key: e.SubKey,
		Run: func(ctx context.Context, emit func(plugin.Envelope)) {
			emit(plugin.Wrap("tick"))
			<-ctx.Done()
		},
	}
}
