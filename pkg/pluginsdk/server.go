// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package pluginsdk

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/paneplug/paneplug/pkg/plugin"
	pluginv1 "github.com/paneplug/paneplug/pkg/proto/paneplug/plugin/v1"
)

// Server adapts a plugin.Plugin to pluginv1.PluginServer.
//
// Envelopes stay in this process. Server hands out numeric handles instead:
//   - view handles name button messages of the last View and may be
//     delivered any number of times, each delivery getting a clone;
//   - pending handles name messages produced by commands and subscriptions
//     and are consumed by their first delivery;
//   - command handles name commands returned by Update and run once.
//
// Calls into the plugin are serialized.
type Server struct {
	pluginv1.UnimplementedPluginServer

	mu       sync.Mutex
	plugin   plugin.Plugin
	next     uint64
	views    map[uint64]plugin.Envelope
	pending  map[uint64]plugin.Envelope
	commands map[uint64]plugin.Command
}

// NewServer wraps p.
func NewServer(p plugin.Plugin) *Server {
	return &Server{
		plugin:   p,
		views:    make(map[uint64]plugin.Envelope),
		pending:  make(map[uint64]plugin.Envelope),
		commands: make(map[uint64]plugin.Command),
	}
}

// handle returns a fresh non-zero handle. Callers hold mu.
func (s *Server) handle() uint64 {
	s.next++
	return s.next
}

// Describe implements pluginv1.PluginServer.
func (s *Server) Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := pluginv1.Description{
		Name:    plugin.NameOf(s.plugin),
		Version: s.plugin.Version(),
	}
	if sub := s.plugin.Subscription(); sub != nil {
		d.Subscription = sub.Key
	}
	return d.Struct(), nil
}

// View implements pluginv1.PluginServer. Handles from the previous view are
// invalidated.
func (s *Server) View(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.views)
	node := s.plugin.View()
	return pluginv1.EncodeNode(node, func(e plugin.Envelope) uint64 {
		h := s.handle()
		s.views[h] = e
		return h
	}), nil
}

// Update implements pluginv1.PluginServer.
func (s *Server) Update(_ context.Context, req *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := req.GetValue()
	var msg plugin.Envelope
	if env, ok := s.pending[h]; ok {
		delete(s.pending, h)
		msg = env
	} else if env, ok := s.views[h]; ok {
		msg = env.Clone()
	} else {
		return nil, status.Errorf(codes.NotFound, "unknown message handle %d", h)
	}

	cmds := s.plugin.Update(msg)
	ids := make([]uint64, 0, len(cmds))
	for _, c := range cmds {
		if c == nil {
			continue
		}
		id := s.handle()
		s.commands[id] = c
		ids = append(ids, id)
	}
	return pluginv1.EncodeCommands(ids), nil
}

// RunCommand implements pluginv1.PluginServer. The command runs outside the
// plugin lock; its message, if any, becomes a pending handle.
func (s *Server) RunCommand(ctx context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.UInt64Value, error) {
	s.mu.Lock()
	cmd, ok := s.commands[req.GetValue()]
	delete(s.commands, req.GetValue())
	s.mu.Unlock()

	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown command handle %d", req.GetValue())
	}

	env := cmd(ctx)
	if env.IsZero() {
		return wrapperspb.UInt64(0), nil
	}
	return wrapperspb.UInt64(s.park(env)), nil
}

// Subscribe implements pluginv1.PluginServer. It runs the subscription the
// plugin declares now until the host cancels the stream.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.UInt64Value]) error {
	s.mu.Lock()
	sub := s.plugin.Subscription()
	s.mu.Unlock()

	if sub == nil || sub.Run == nil {
		return nil
	}

	ctx := stream.Context()
	sub.Run(ctx, func(env plugin.Envelope) {
		if env.IsZero() || ctx.Err() != nil {
			return
		}
		h := s.park(env)
		if err := stream.Send(wrapperspb.UInt64(h)); err != nil {
			s.drop(h)
		}
	})
	return nil
}

// park stores env as a pending message.
func (s *Server) park(env plugin.Envelope) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle()
	s.pending[h] = env
	return h
}

func (s *Server) drop(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, h)
}

// Pending returns the number of undelivered messages.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
