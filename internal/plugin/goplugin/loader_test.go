// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package goplugin

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/plugintest"
	"github.com/paneplug/paneplug/pkg/errutil"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
	pluginv1 "github.com/paneplug/paneplug/pkg/proto/paneplug/plugin/v1"
	"github.com/paneplug/paneplug/pkg/pluginsdk"
)

// createTempExecutable creates a dummy file that passes os.Stat checks.
func createTempExecutable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin")
	require.NoError(t, os.WriteFile(path, []byte("dummy"), 0o700))
	return path
}

// mockClientProtocol implements hashiplug.ClientProtocol for testing.
type mockClientProtocol struct {
	pluginClient any
	dispenseErr  error
	pingFailures int32
	pings        atomic.Int32
}

func (m *mockClientProtocol) Close() error { return nil }

func (m *mockClientProtocol) Dispense(_ string) (any, error) {
	if m.dispenseErr != nil {
		return nil, m.dispenseErr
	}
	return m.pluginClient, nil
}

func (m *mockClientProtocol) Ping() error {
	if m.pings.Add(1) <= m.pingFailures {
		return errors.New("not ready")
	}
	return nil
}

// mockPluginClient implements PluginClient for testing.
type mockPluginClient struct {
	protocol  *mockClientProtocol
	killed    atomic.Int32
	clientErr error
}

func (m *mockPluginClient) Client() (hashiplug.ClientProtocol, error) {
	if m.clientErr != nil {
		return nil, m.clientErr
	}
	return m.protocol, nil
}

func (m *mockPluginClient) Kill() { m.killed.Add(1) }

// mockClientFactory creates mock clients for testing.
type mockClientFactory struct {
	client *mockPluginClient
	paths  []string
}

func (f *mockClientFactory) NewClient(path string) PluginClient {
	f.paths = append(f.paths, path)
	return f.client
}

// serve runs p behind a pluginsdk server on an in-memory connection.
func serve(t *testing.T, p pluginpkg.Plugin) pluginv1.PluginClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	pluginv1.RegisterPluginServer(s, pluginsdk.NewServer(p))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return pluginv1.NewPluginClient(conn)
}

func newMockLoader(t *testing.T, client *mockPluginClient) (*Loader, *mockClientFactory) {
	t.Helper()
	factory := &mockClientFactory{client: client}
	l := NewLoader(WithClientFactory(factory), WithCallTimeout(time.Second))
	l.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
	}
	return l, factory
}

func TestLoader_CounterOverGRPC(t *testing.T) {
	j := &plugintest.Journal{}
	client := &mockPluginClient{protocol: &mockClientProtocol{
		pluginClient: serve(t, &plugintest.Counter{Label: "remote", Journal: j}),
		pingFailures: 2,
	}}
	l, factory := newMockLoader(t, client)
	path := createTempExecutable(t)

	r := plugins.NewRegistry(l)
	id, err := r.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, factory.paths)
	assert.Equal(t, int32(3), client.protocol.pings.Load(), "ping is retried until ready")

	entry, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "counter", entry.Name)
	assert.Equal(t, Runtime, entry.Runtime)

	for _, label := range []string{"Add", "Add", "Remove"} {
		view, ok := r.View(id)
		require.True(t, ok)
		btn, ok := view.Find(label)
		require.True(t, ok)
		msg, ok := plugins.Untag(btn.OnPress)
		require.True(t, ok)
		assert.Empty(t, r.Update(context.Background(), msg.ID, msg.Envelope.Clone()))
	}

	view, ok := r.View(id)
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, view.Texts())

	require.NoError(t, r.Close())
	assert.Equal(t, int32(1), client.killed.Load())
}

func TestLoader_CommandsAndSubscription(t *testing.T) {
	echo := &plugintest.Echo{SubKey: "ticks"}
	client := &mockPluginClient{protocol: &mockClientProtocol{pluginClient: serve(t, echo)}}
	l, _ := newMockLoader(t, client)

	mod, err := l.Load(context.Background(), createTempExecutable(t))
	require.NoError(t, err)
	defer func() { _ = mod.Close() }()

	btn, ok := mod.View().Find("Ping")
	require.True(t, ok)
	cmds := mod.Update(btn.OnPress)
	require.Len(t, cmds, 2)

	pong := cmds[0](context.Background())
	require.False(t, pong.IsZero())
	assert.True(t, cmds[1](context.Background()).IsZero())

	assert.Empty(t, mod.Update(pong))
	assert.Empty(t, mod.Update(pluginpkg.Wrap("not remote")), "foreign messages are ignored")

	sub := mod.Subscription()
	require.NotNil(t, sub)
	assert.Equal(t, "ticks", sub.Key)

	ctx, cancel := context.WithCancel(context.Background())
	var tick pluginpkg.Envelope
	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx, func(e pluginpkg.Envelope) {
			tick = e
			cancel()
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not stop after cancel")
	}
	require.False(t, tick.IsZero())
	mod.Update(tick)

	view := mod.View()
	assert.Equal(t, []string{"3 received"}, view.Texts())
}

func TestLoader_MessagesDoNotCrossPlugins(t *testing.T) {
	j := &plugintest.Journal{}
	counterLoader, _ := newMockLoader(t, &mockPluginClient{protocol: &mockClientProtocol{
		pluginClient: serve(t, &plugintest.Counter{Label: "remote", Journal: j}),
	}})
	echo := &plugintest.Echo{}
	echoLoader, _ := newMockLoader(t, &mockPluginClient{protocol: &mockClientProtocol{
		pluginClient: serve(t, echo),
	}})

	counterPath := createTempExecutable(t)
	echoPath := createTempExecutable(t)
	loader := plugins.LoaderFunc(func(ctx context.Context, path string) (*plugins.Module, error) {
		if path == counterPath {
			return counterLoader.Load(ctx, path)
		}
		return echoLoader.Load(ctx, path)
	})

	r := plugins.NewRegistry(loader)
	defer func() { _ = r.Close() }()
	counterID, err := r.Load(context.Background(), counterPath)
	require.NoError(t, err)
	echoID, err := r.Load(context.Background(), echoPath)
	require.NoError(t, err)

	view, ok := r.View(counterID)
	require.True(t, ok)
	add, ok := view.Find("Add")
	require.True(t, ok)
	msg, ok := plugins.Untag(add.OnPress)
	require.True(t, ok)

	assert.Empty(t, r.Update(context.Background(), echoID, msg.Envelope.Clone()))
	echoView, ok := r.View(echoID)
	require.True(t, ok)
	assert.Equal(t, []string{"0 received"}, echoView.Texts(), "a message from another binary plugin is ignored")
	assert.Empty(t, echo.Received)

	r.Update(context.Background(), counterID, msg.Envelope.Clone())
	view, ok = r.View(counterID)
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, view.Texts())
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name     string
		client   *mockPluginClient
		wantErr  error
		wantCode string
	}{
		{
			name:     "client fails to start",
			client:   &mockPluginClient{clientErr: errors.New("exec format error")},
			wantErr:  plugins.ErrCannotOpen,
			wantCode: plugins.CodeCannotOpen,
		},
		{
			name:     "never answers ping",
			client:   &mockPluginClient{protocol: &mockClientProtocol{pingFailures: 100}},
			wantErr:  plugins.ErrCannotOpen,
			wantCode: plugins.CodeCannotOpen,
		},
		{
			name:     "dispense fails",
			client:   &mockPluginClient{protocol: &mockClientProtocol{dispenseErr: errors.New("unknown plugin")}},
			wantErr:  plugins.ErrMissingEntryPoint,
			wantCode: plugins.CodeMissingEntryPoint,
		},
		{
			name:     "dispenses wrong type",
			client:   &mockPluginClient{protocol: &mockClientProtocol{pluginClient: "not a client"}},
			wantErr:  plugins.ErrMissingEntryPoint,
			wantCode: plugins.CodeMissingEntryPoint,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newMockLoader(t, tt.client)
			_, err := l.Load(context.Background(), createTempExecutable(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.Equal(t, int32(1), tt.client.killed.Load(), "process is killed on failure")
		})
	}
}

func TestLoader_MissingExecutable(t *testing.T) {
	client := &mockPluginClient{}
	l, factory := newMockLoader(t, client)

	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, plugins.ErrCannotOpen)
	assert.Empty(t, factory.paths, "no process is started")
}

func TestPluginMap_DispensesClients(t *testing.T) {
	raw, ok := PluginMap[pluginsdk.PluginName]
	require.True(t, ok)
	p, ok := raw.(*pluginsdk.GRPCPlugin)
	require.True(t, ok)

	client, err := p.GRPCClient(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Implements(t, (*pluginv1.PluginClient)(nil), client)
}

func TestDefaultClientFactory(t *testing.T) {
	f := &DefaultClientFactory{StartTimeout: time.Second}
	c := f.NewClient("/nonexistent/plugin")
	require.NotNil(t, c)
	c.Kill()
}
