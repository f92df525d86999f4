// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package goplugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
	pluginv1 "github.com/paneplug/paneplug/pkg/proto/paneplug/plugin/v1"
)

// remoteMessage names a message that lives in the process of owner.
// Handles are only meaningful to the plugin that issued them.
type remoteMessage struct {
	owner  *remote
	handle uint64
}

// remote is the host-side instance of a binary plugin. Every method is a
// gRPC call bounded by timeout; failures are logged and degrade to an empty
// result because the Plugin contract has no error returns.
type remote struct {
	client  pluginv1.PluginClient
	desc    pluginv1.Description
	timeout time.Duration
	logger  *slog.Logger
}

func (r *remote) Name() string { return r.desc.Name }

func (r *remote) Version() string {
	if r.desc.Version == "" {
		return pluginpkg.DefaultVersion
	}
	return r.desc.Version
}

func (r *remote) message(h uint64) pluginpkg.Envelope {
	return pluginpkg.Wrap(remoteMessage{owner: r, handle: h})
}

func (r *remote) View() pluginpkg.Node {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	s, err := r.client.View(ctx, &emptypb.Empty{})
	if err != nil {
		r.logger.Warn("plugin view failed", "error", err)
		return pluginpkg.Text("plugin unavailable")
	}
	n, err := pluginv1.DecodeNode(s, r.message)
	if err != nil {
		r.logger.Warn("plugin returned an invalid view", "error", err)
		return pluginpkg.Text("plugin returned an invalid view")
	}
	return n
}

func (r *remote) Update(msg pluginpkg.Envelope) []pluginpkg.Command {
	m, ok := pluginpkg.As[remoteMessage](msg)
	if !ok || m.owner != r {
		r.logger.Debug("ignoring message not issued by plugin", "message", msg.String())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	resp, err := r.client.Update(ctx, wrapperspb.UInt64(m.handle))
	if err != nil {
		r.logger.Warn("plugin update failed", "handle", m.handle, "error", err)
		return nil
	}
	ids, err := pluginv1.DecodeCommands(resp)
	if err != nil {
		r.logger.Warn("plugin returned invalid commands", "error", err)
		return nil
	}

	cmds := make([]pluginpkg.Command, len(ids))
	for i, id := range ids {
		cmds[i] = r.command(id)
	}
	return cmds
}

func (r *remote) command(id uint64) pluginpkg.Command {
	return func(ctx context.Context) pluginpkg.Envelope {
		resp, err := r.client.RunCommand(ctx, wrapperspb.UInt64(id))
		if err != nil {
			r.logger.Warn("plugin command failed", "command", id, "error", err)
			return pluginpkg.Envelope{}
		}
		if resp.GetValue() == 0 {
			return pluginpkg.Envelope{}
		}
		return r.message(resp.GetValue())
	}
}

// Subscription asks the plugin for its current key. The stream is opened
// only when the host runs the subscription.
func (r *remote) Subscription() *pluginpkg.Subscription {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	s, err := r.client.Describe(ctx, &emptypb.Empty{})
	if err != nil {
		r.logger.Warn("plugin describe failed", "error", err)
		return nil
	}
	key := pluginv1.DecodeDescription(s).Subscription
	if key == "" {
		return nil
	}

	return &pluginpkg.Subscription{
		Key: key,
		Run: func(ctx context.Context, emit func(pluginpkg.Envelope)) {
			stream, err := r.client.Subscribe(ctx, &emptypb.Empty{})
			if err != nil {
				r.logger.Warn("plugin subscribe failed", "key", key, "error", err)
				return
			}
			for {
				h, err := stream.Recv()
				if err != nil {
					if !errors.Is(err, io.EOF) && ctx.Err() == nil {
						r.logger.Warn("plugin subscription ended", "key", key, "error", err)
					}
					return
				}
				emit(r.message(h.GetValue()))
			}
		},
	}
}
