// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package goplugin runs binary plugins as child processes using HashiCorp's
// go-plugin system over gRPC.
package goplugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/sethvargo/go-retry"
	"google.golang.org/protobuf/types/known/emptypb"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
	pluginv1 "github.com/paneplug/paneplug/pkg/proto/paneplug/plugin/v1"
	"github.com/paneplug/paneplug/pkg/pluginsdk"
)

// Runtime is the runtime name reported by binary modules.
const Runtime = string(plugins.TypeBinary)

// DefaultCallTimeout bounds every View, Update and Describe call.
const DefaultCallTimeout = 5 * time.Second

// DefaultStartTimeout bounds the plugin process handshake.
const DefaultStartTimeout = 10 * time.Second

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	Logger       hclog.Logger
	StartTimeout time.Duration
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath comes from the operator's plugin directory or command line
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger:           f.Logger,
		StartTimeout:     f.StartTimeout,
	})
}

// Loader starts binary plugins and proxies their instance over gRPC.
type Loader struct {
	factory     ClientFactory
	callTimeout time.Duration
	backoff     func() retry.Backoff
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(l *Loader) {
		if f != nil {
			l.factory = f
		}
	}
}

// WithCallTimeout bounds each call into the plugin.
func WithCallTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.callTimeout = d
		}
	}
}

// WithLogger sets the host-side logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a binary plugin loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		factory:     &DefaultClientFactory{StartTimeout: DefaultStartTimeout},
		callTimeout: DefaultCallTimeout,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements plugins.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*plugins.Module, error) {
	execPath, err := filepath.Abs(path)
	if err != nil {
		return nil, plugins.CannotOpen(path, err)
	}
	if _, err := os.Stat(execPath); err != nil {
		return nil, plugins.CannotOpen(execPath, err)
	}

	client := l.factory.NewClient(execPath)
	proc := &process{path: execPath, client: client}

	rpcClient, err := client.Client()
	if err != nil {
		return nil, errors.Join(plugins.CannotOpen(execPath, err), proc.Release())
	}

	err = retry.Do(ctx, l.backoff(), func(context.Context) error {
		if err := rpcClient.Ping(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(plugins.CannotOpen(execPath, fmt.Errorf("ping: %w", err)), proc.Release())
	}

	raw, err := rpcClient.Dispense(pluginsdk.PluginName)
	if err != nil {
		return nil, errors.Join(plugins.MissingEntryPoint(execPath, pluginsdk.PluginName, err), proc.Release())
	}
	pc, ok := raw.(pluginv1.PluginClient)
	if !ok {
		return nil, errors.Join(
			plugins.MissingEntryPoint(execPath, pluginsdk.PluginName, fmt.Errorf("dispensed %T", raw)),
			proc.Release(),
		)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	desc, err := pc.Describe(callCtx, &emptypb.Empty{})
	cancel()
	if err != nil {
		return nil, errors.Join(plugins.InvalidInstance(execPath, fmt.Errorf("describe: %w", err)), proc.Release())
	}

	inst, err := plugins.Instantiate(execPath, func() pluginpkg.Plugin {
		return &remote{
			client:  pc,
			desc:    pluginv1.DecodeDescription(desc),
			timeout: l.callTimeout,
			logger:  l.logger.With("path", execPath),
		}
	})
	if err != nil {
		return nil, errors.Join(err, proc.Release())
	}

	l.logger.DebugContext(ctx, "started binary plugin", "path", execPath)
	return plugins.NewModule(Runtime, proc, inst), nil
}

// process is the library handle of a binary plugin: releasing it kills the
// child process.
type process struct {
	path   string
	client PluginClient
	killed bool
}

func (p *process) Path() string { return p.path }

func (p *process) Release() error {
	if p.killed {
		return nil
	}
	p.killed = true
	p.client.Kill()
	return nil
}
