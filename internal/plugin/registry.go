// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

var tracer = otel.Tracer("paneplug/plugin")

// ID identifies a loaded plugin for the lifetime of its registry entry.
type ID uint16

// maxIDs is the size of the id space.
const maxIDs = 1 << 16

// Message is a plugin message tagged with the id of the plugin it belongs to.
// Views and subscriptions returned by the Registry carry envelopes of Message.
type Message struct {
	ID       ID
	Envelope pluginpkg.Envelope
}

// Tag wraps env so the host can route it back to plugin id.
func Tag(id ID, env pluginpkg.Envelope) pluginpkg.Envelope {
	return pluginpkg.Wrap(Message{ID: id, Envelope: env})
}

// Untag recovers a Message produced by Tag.
func Untag(env pluginpkg.Envelope) (Message, bool) {
	return pluginpkg.As[Message](env)
}

// Command is a plugin command tagged with the id of the plugin that issued it.
type Command struct {
	ID  ID
	cmd pluginpkg.Command
}

// Run executes the command. It reports false when the command produced no
// follow-up message.
func (c Command) Run(ctx context.Context) (Message, bool) {
	if c.cmd == nil {
		return Message{}, false
	}
	env := c.cmd(ctx)
	if env.IsZero() {
		return Message{}, false
	}
	return Message{ID: c.ID, Envelope: env}, true
}

// Entry describes a loaded plugin.
type Entry struct {
	ID       ID
	Name     string
	Version  string
	Path     string
	Runtime  string
	Instance ulid.ULID
	LoadedAt time.Time
}

// Observer receives registry lifecycle notifications.
type Observer interface {
	PluginLoaded(e Entry)
	PluginLoadFailed(path string, err error)
	PluginUnloaded(e Entry)
	PluginUpdated(e Entry, commands int)
}

type nopObserver struct{}

func (nopObserver) PluginLoaded(Entry)             {}
func (nopObserver) PluginLoadFailed(string, error) {}
func (nopObserver) PluginUnloaded(Entry)           {}
func (nopObserver) PluginUpdated(Entry, int)       {}

type slot struct {
	module *Module
	info   Entry
	logger *slog.Logger
}

// entries is kept apart from Registry so the cleanup hook can reach it
// without keeping the Registry alive.
type entries struct {
	slots map[ID]*slot
}

// teardown closes every module, each instance before its library, and keeps
// going past failures.
func (es *entries) teardown() error {
	ids := make([]ID, 0, len(es.slots))
	for id := range es.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		s := es.slots[id]
		delete(es.slots, id)
		if err := s.module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("plugin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Registry owns loaded modules keyed by ID.
//
// Registry is not safe for concurrent use. The host calls it from one
// goroutine, usually its event loop.
type Registry struct {
	loader   Loader
	observer Observer
	logger   *slog.Logger
	state    *entries
	cleanup  runtime.Cleanup
	next     ID
	closed   bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry that loads modules with loader.
// Panics if loader is nil.
func NewRegistry(loader Loader, opts ...RegistryOption) *Registry {
	if loader == nil {
		panic("plugin: loader cannot be nil")
	}
	r := &Registry{
		loader:   loader,
		observer: nopObserver{},
		logger:   slog.Default(),
		state:    &entries{slots: make(map[ID]*slot)},
	}
	for _, opt := range opts {
		opt(r)
	}

	logger := r.logger
	r.cleanup = runtime.AddCleanup(r, func(es *entries) {
		if len(es.slots) == 0 {
			return
		}
		logger.Warn("registry dropped without Close, tearing down plugins", "count", len(es.slots))
		if err := es.teardown(); err != nil {
			logger.Error("plugin teardown failed", "error", err)
		}
	}, r.state)

	return r
}

// Load loads the module at path under the next free id.
// The id counter only advances when the load succeeds.
func (r *Registry) Load(ctx context.Context, path string) (ID, error) {
	if r.closed {
		return 0, oops.Code(CodeRegistryClosed).In("plugin").With("path", path).Wrap(ErrRegistryClosed)
	}

	id, ok := r.freeID()
	if !ok {
		return 0, oops.Code(CodeIDsExhausted).In("plugin").With("path", path).Wrap(ErrIDsExhausted)
	}

	if err := r.load(ctx, id, path); err != nil {
		return 0, err
	}
	r.next = id + 1
	return id, nil
}

// LoadWithID loads the module at path under id. It fails with ErrDuplicateID,
// without touching the existing entry or opening path, when id is in use.
func (r *Registry) LoadWithID(ctx context.Context, id ID, path string) (ID, error) {
	if r.closed {
		return 0, oops.Code(CodeRegistryClosed).In("plugin").With("path", path).Wrap(ErrRegistryClosed)
	}

	if _, ok := r.state.slots[id]; ok {
		err := oops.Code(CodeDuplicateID).
			In("plugin").
			With("plugin_id", id).
			With("path", path).
			Wrap(ErrDuplicateID)
		r.observer.PluginLoadFailed(path, err)
		return 0, err
	}

	if err := r.load(ctx, id, path); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Registry) freeID() (ID, bool) {
	for i := range maxIDs {
		id := r.next + ID(i)
		if _, used := r.state.slots[id]; !used {
			return id, true
		}
	}
	return 0, false
}

func (r *Registry) load(ctx context.Context, id ID, path string) (err error) {
	ctx, span := tracer.Start(ctx, "plugin.load", trace.WithAttributes(
		attribute.Int("plugin.id", int(id)),
		attribute.String("plugin.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	mod, err := r.loader.Load(ctx, path)
	if err != nil {
		r.observer.PluginLoadFailed(path, err)
		return err
	}

	info := Entry{
		ID:       id,
		Name:     mod.Name(),
		Version:  mod.Version(),
		Path:     mod.Path(),
		Runtime:  mod.Runtime(),
		Instance: ulid.Make(),
		LoadedAt: time.Now(),
	}
	logger := r.logger.With(
		"plugin_id", int(id),
		"plugin", info.Name,
		"instance_id", info.Instance.String(),
	)
	r.state.slots[id] = &slot{module: mod, info: info, logger: logger}

	span.SetAttributes(
		attribute.String("plugin.name", info.Name),
		attribute.String("plugin.runtime", info.Runtime),
	)
	logger.InfoContext(ctx, "loaded plugin",
		"runtime", info.Runtime,
		"version", info.Version,
		"path", info.Path,
		"duration", time.Since(start))
	r.observer.PluginLoaded(info)
	return nil
}

// Unload removes id, dropping its instance and then releasing its library.
// Unloading an absent id is a no-op. The entry is removed even when Close
// reports an error.
func (r *Registry) Unload(id ID) error {
	s, ok := r.state.slots[id]
	if !ok {
		return nil
	}
	delete(r.state.slots, id)

	err := s.module.Close()
	if err != nil {
		s.logger.Warn("plugin unload reported errors", "error", err)
	} else {
		s.logger.Info("unloaded plugin")
	}
	r.observer.PluginUnloaded(s.info)
	return err
}

// Update delivers env to plugin id and returns its commands tagged with id.
// Messages for an absent id are dropped: unloads may race with in-flight
// messages.
func (r *Registry) Update(ctx context.Context, id ID, env pluginpkg.Envelope) []Command {
	s, ok := r.state.slots[id]
	if !ok {
		r.logger.DebugContext(ctx, "dropping message for unknown plugin",
			"plugin_id", int(id),
			"message", env.String())
		return nil
	}

	ctx, span := tracer.Start(ctx, "plugin.update", trace.WithAttributes(
		attribute.Int("plugin.id", int(id)),
		attribute.String("plugin.name", s.info.Name),
		attribute.String("plugin.message", env.String()),
	))
	defer span.End()

	var cmds []pluginpkg.Command
	if !r.guard(ctx, s, "update", func() { cmds = s.module.Update(env) }) {
		span.SetStatus(codes.Error, "plugin panicked")
		return nil
	}

	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c == nil {
			continue
		}
		out = append(out, Command{ID: id, cmd: c})
	}
	span.SetAttributes(attribute.Int("plugin.commands", len(out)))
	r.observer.PluginUpdated(s.info, len(out))
	return out
}

// View returns the view of plugin id with every message tagged with id.
// It reports false when id is not loaded; the host shows a placeholder.
func (r *Registry) View(id ID) (pluginpkg.Node, bool) {
	s, ok := r.state.slots[id]
	if !ok {
		return pluginpkg.Node{}, false
	}

	var node pluginpkg.Node
	if !r.guard(context.Background(), s, "view", func() { node = s.module.View() }) {
		return pluginpkg.Text("plugin " + s.info.Name + " failed to render"), true
	}
	return node.Map(func(env pluginpkg.Envelope) pluginpkg.Envelope {
		return Tag(id, env)
	}), true
}

// Subscription returns the subscription of plugin id with every emitted
// message tagged with id. It reports false when id is not loaded or the
// plugin declares no subscription.
func (r *Registry) Subscription(id ID) (*pluginpkg.Subscription, bool) {
	s, ok := r.state.slots[id]
	if !ok {
		return nil, false
	}

	var sub *pluginpkg.Subscription
	if !r.guard(context.Background(), s, "subscription", func() { sub = s.module.Subscription() }) || sub == nil {
		return nil, false
	}
	return sub.Map(func(env pluginpkg.Envelope) pluginpkg.Envelope {
		return Tag(id, env)
	}), true
}

// guard runs fn and turns a plugin panic into a logged failure so one plugin
// cannot stop the host loop.
func (r *Registry) guard(ctx context.Context, s *slot, op string, fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "plugin panicked",
				"operation", op,
				"panic", fmt.Sprint(p))
			ok = false
		}
	}()
	fn()
	return true
}

// Get returns the entry for id.
func (r *Registry) Get(id ID) (Entry, bool) {
	s, ok := r.state.slots[id]
	if !ok {
		return Entry{}, false
	}
	return s.info, true
}

// Has reports whether id is loaded.
func (r *Registry) Has(id ID) bool {
	_, ok := r.state.slots[id]
	return ok
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	return len(r.state.slots)
}

// List returns a snapshot of loaded plugins ordered by id.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.state.slots))
	for _, s := range r.state.slots {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close unloads every plugin. Each instance is dropped before its library is
// released, and a failure in one entry does not stop the others. The
// registry rejects further loads afterwards.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cleanup.Stop()

	unloaded := make([]Entry, 0, len(r.state.slots))
	for _, s := range r.state.slots {
		unloaded = append(unloaded, s.info)
	}

	err := r.state.teardown()
	for _, e := range unloaded {
		r.observer.PluginUnloaded(e)
	}
	if err != nil {
		return oops.In("plugin").With("operation", "close").Wrap(err)
	}
	r.logger.Info("plugin registry closed", "unloaded", len(unloaded))
	return nil
}
