// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package pluginsdk serves a plugin.Plugin from its own process.
//
// Binary plugins talk to the paneplug host over gRPC using the HashiCorp
// go-plugin framework. The plugin is written against pkg/plugin exactly like a
// native one; only main differs.
//
// Example usage:
//
//	package main
//
//	import (
//		"github.com/paneplug/paneplug/pkg/plugin"
//		"github.com/paneplug/paneplug/pkg/pluginsdk"
//	)
//
//	type Hello struct{ plugin.Base }
//
//	func (Hello) View() plugin.Node                       { return plugin.Text("hello") }
//	func (Hello) Update(plugin.Envelope) []plugin.Command { return nil }
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Plugin: Hello{}})
//	}
package pluginsdk

import (
	"context"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"

	"github.com/paneplug/paneplug/pkg/plugin"
	pluginv1 "github.com/paneplug/paneplug/pkg/proto/paneplug/plugin/v1"
)

// PluginName is the name the plugin is dispensed under.
const PluginName = "plugin"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PANEPLUG_PLUGIN",
	MagicCookieValue: "paneplug-v1",
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Plugin is the instance to serve.
	// Required; Serve will panic if nil.
	Plugin plugin.Plugin
	// Logger receives go-plugin diagnostics. The host collects them from
	// stderr. Defaults to a JSON hclog logger, which the host parses.
	Logger hclog.Logger
}

// Serve starts the plugin server. This should be called from main().
// It blocks until the host disconnects.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Plugin == nil {
		panic("pluginsdk: config.Plugin cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:       plugin.NameOf(config.Plugin),
			Level:      hclog.Info,
			JSONFormat: true,
		})
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginSet(NewServer(config.Plugin)),
		GRPCServer:      hashiplug.DefaultGRPCServer,
		Logger:          logger,
	})
}

// PluginSet returns the go-plugin plugin set for both sides of the
// connection. Plugins pass their server; hosts pass nil and only dispense.
func PluginSet(server pluginv1.PluginServer) hashiplug.PluginSet {
	return hashiplug.PluginSet{PluginName: &GRPCPlugin{Server: server}}
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Server is used by the plugin side only.
	Server pluginv1.PluginServer
}

// GRPCServer registers the plugin server (called by plugin process).
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Server == nil {
		return errors.New("pluginsdk: server is nil")
	}
	pluginv1.RegisterPluginServer(s, p.Server)
	return nil
}

// GRPCClient returns a plugin client (called by host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (any, error) {
	return pluginv1.NewPluginClient(c), nil
}
