// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package host runs the asynchronous side of plugins: subscriptions and
// commands. Everything they produce arrives on one channel of tagged
// messages, which the host loop feeds back through Registry.Update.
package host

import (
	"context"
	"log/slog"
	"sync"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Source is the part of a registry the host reads subscriptions from.
type Source interface {
	List() []plugins.Entry
	Subscription(id plugins.ID) (*pluginpkg.Subscription, bool)
}

type running struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscriptions keeps one goroutine per plugin subscription.
type Subscriptions struct {
	out    chan<- plugins.Message
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[plugins.ID]running
}

// NewSubscriptions creates a runner that delivers messages on out.
func NewSubscriptions(out chan<- plugins.Message, logger *slog.Logger) *Subscriptions {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriptions{
		out:     out,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[plugins.ID]running),
	}
}

// Sync reconciles running subscriptions with src. It must be called from the
// goroutine that owns the registry, after every load, unload and update.
//
// A subscription is started when its id has none running, restarted when its
// key changed, and cancelled when its plugin is gone or declares none.
func (s *Subscriptions) Sync(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	want := make(map[plugins.ID]*pluginpkg.Subscription)
	for _, e := range src.List() {
		if sub, ok := src.Subscription(e.ID); ok {
			want[e.ID] = sub
		}
	}

	for id, r := range s.running {
		if sub, ok := want[id]; !ok || sub.Key != r.key {
			r.cancel()
			delete(s.running, id)
			s.logger.Debug("subscription stopped", "plugin_id", int(id), "key", r.key)
		}
	}

	for id, sub := range want {
		if _, ok := s.running[id]; ok {
			continue
		}
		s.start(id, sub)
	}
}

func (s *Subscriptions) start(id plugins.ID, sub *pluginpkg.Subscription) {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.running[id] = running{key: sub.Key, cancel: cancel, done: done}
	s.logger.Debug("subscription started", "plugin_id", int(id), "key", sub.Key)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("subscription panicked", "plugin_id", int(id), "key", sub.Key, "panic", p)
			}
		}()
		sub.Run(ctx, func(env pluginpkg.Envelope) {
			msg, ok := plugins.Untag(env)
			if !ok {
				return
			}
			select {
			case s.out <- msg:
			case <-ctx.Done():
			}
		})
	}()
}

// Stop cancels the subscription of id and waits for it to return. Call it
// before unloading id so no plugin code runs after its library is released.
func (s *Subscriptions) Stop(id plugins.ID) {
	s.mu.Lock()
	r, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
	s.logger.Debug("subscription stopped", "plugin_id", int(id), "key", r.key)
}

// Keys returns the key of every running subscription by plugin id.
func (s *Subscriptions) Keys() map[plugins.ID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[plugins.ID]string, len(s.running))
	for id, r := range s.running {
		out[id] = r.key
	}
	return out
}

// Close cancels every subscription and waits for them to return. Sync is a
// no-op afterwards.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	s.cancel()
	clear(s.running)
	s.mu.Unlock()
	s.wg.Wait()
}
