// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	plugins "github.com/paneplug/paneplug/internal/plugin"
)

var tracer = otel.Tracer("paneplug/host")

// DefaultCommandTimeout bounds a command when none is configured.
const DefaultCommandTimeout = 30 * time.Second

// Dispatcher runs plugin commands off the host loop.
type Dispatcher struct {
	out     chan<- plugins.Message
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[plugins.ID]map[*flight]struct{}
}

// flight is one running command.
type flight struct {
	stop context.CancelFunc
	done chan struct{}
}

// NewDispatcher creates a dispatcher that delivers command results on out.
// Each command is cancelled after timeout.
func NewDispatcher(out chan<- plugins.Message, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		out:      out,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[plugins.ID]map[*flight]struct{}),
	}
}

// Dispatch starts every command in its own goroutine. Commands dispatched
// after Close are dropped.
func (d *Dispatcher) Dispatch(cmds []plugins.Command) {
	if d.ctx.Err() != nil {
		return
	}
	for _, c := range cmds {
		ctx, stop := context.WithCancel(d.ctx)
		f := &flight{stop: stop, done: make(chan struct{})}

		d.mu.Lock()
		if d.inflight[c.ID] == nil {
			d.inflight[c.ID] = make(map[*flight]struct{})
		}
		d.inflight[c.ID][f] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go d.run(ctx, f, c)
	}
}

func (d *Dispatcher) run(stopCtx context.Context, f *flight, c plugins.Command) {
	defer d.wg.Done()
	defer close(f.done)
	defer d.forget(c.ID, f)
	defer f.stop()
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("command panicked", "plugin_id", int(c.ID), "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(stopCtx, d.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "plugin.command", trace.WithAttributes(
		attribute.Int("plugin.id", int(c.ID)),
	))
	defer span.End()

	msg, ok := c.Run(ctx)
	if !ok || stopCtx.Err() != nil {
		return
	}
	select {
	case d.out <- msg:
	case <-stopCtx.Done():
	}
}

func (d *Dispatcher) forget(id plugins.ID, f *flight) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight[id], f)
	if len(d.inflight[id]) == 0 {
		delete(d.inflight, id)
	}
}

// Cancel stops the in-flight commands of id, waits for them to return, and
// drops their results. Call it before unloading id.
func (d *Dispatcher) Cancel(id plugins.ID) {
	d.mu.Lock()
	flights := make([]*flight, 0, len(d.inflight[id]))
	for f := range d.inflight[id] {
		flights = append(flights, f)
	}
	delete(d.inflight, id)
	d.mu.Unlock()

	for _, f := range flights {
		f.stop()
		<-f.done
	}
}

// Pending reports how many commands of id are in flight.
func (d *Dispatcher) Pending(id plugins.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight[id])
}

// Close cancels in-flight commands and waits for them to return.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
