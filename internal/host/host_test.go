// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/paneplug/paneplug/internal/host"
	plugins "github.com/paneplug/paneplug/internal/plugin"
	"github.com/paneplug/paneplug/internal/plugin/plugintest"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// sleeper returns a command that only finishes when its context is done.
type sleeper struct {
	pluginpkg.Base
}

func (sleeper) View() pluginpkg.Node { return pluginpkg.Text("zzz") }

func (sleeper) Update(pluginpkg.Envelope) []pluginpkg.Command {
	return []pluginpkg.Command{pluginpkg.After(time.Hour, pluginpkg.Wrap("woke"))}
}

func newRegistry(t *testing.T, plugs map[string]pluginpkg.Plugin) (*plugins.Registry, map[string]plugins.ID) {
	t.Helper()
	loader := plugintest.NewLoader()
	for path, p := range plugs {
		loader.Add(path, func() pluginpkg.Plugin { return p })
	}
	r := plugins.NewRegistry(loader)
	t.Cleanup(func() { _ = r.Close() })

	ids := make(map[string]plugins.ID)
	for path := range plugs {
		id, err := r.Load(context.Background(), path)
		require.NoError(t, err)
		ids[path] = id
	}
	return r, ids
}

func receive(t *testing.T, ch <-chan plugins.Message) plugins.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return plugins.Message{}
	}
}

func TestSubscriptions_FollowKeysAndUnloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	echo := &plugintest.Echo{SubKey: "a"}
	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"echo": echo, "counter": &plugintest.Counter{}})
	id := ids["echo"]

	ch := make(chan plugins.Message)
	subs := host.NewSubscriptions(ch, nil)
	defer subs.Close()

	subs.Sync(r)
	assert.Equal(t, map[plugins.ID]string{id: "a"}, subs.Keys(), "plugins without a subscription are skipped")

	msg := receive(t, ch)
	assert.Equal(t, id, msg.ID)
	tick, ok := pluginpkg.As[string](msg.Envelope)
	require.True(t, ok)
	assert.Equal(t, "tick", tick)

	subs.Sync(r)
	select {
	case <-ch:
		t.Fatal("an unchanged key must not restart the subscription")
	case <-time.After(20 * time.Millisecond):
	}

	echo.SubKey = "b"
	subs.Sync(r)
	assert.Equal(t, map[plugins.ID]string{id: "b"}, subs.Keys())
	assert.Equal(t, id, receive(t, ch).ID, "a new key restarts the subscription")

	echo.SubKey = ""
	subs.Sync(r)
	assert.Empty(t, subs.Keys())

	echo.SubKey = "c"
	subs.Sync(r)
	receive(t, ch)
	require.NoError(t, r.Unload(id))
	subs.Sync(r)
	assert.Empty(t, subs.Keys(), "unloaded plugins stop their subscription")
}

func TestSubscriptions_CloseStopsBlockedSenders(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, _ := newRegistry(t, map[string]pluginpkg.Plugin{"echo": &plugintest.Echo{SubKey: "a"}})

	// Nobody reads ch, so the subscription blocks on delivery.
	subs := host.NewSubscriptions(make(chan plugins.Message), nil)
	subs.Sync(r)
	subs.Close()

	subs.Sync(r)
	assert.Empty(t, subs.Keys(), "sync after close is a no-op")
}

func TestSubscriptions_PanicIsContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	bad := &pluginpkg.Subscription{
		Key: "bad",
		Run: func(context.Context, func(pluginpkg.Envelope)) { panic("boom") },
	}
	src := staticSource{id: 4, sub: bad}

	subs := host.NewSubscriptions(make(chan plugins.Message), nil)
	subs.Sync(src)
	subs.Close()
}

type staticSource struct {
	id  plugins.ID
	sub *pluginpkg.Subscription
}

func (s staticSource) List() []plugins.Entry { return []plugins.Entry{{ID: s.id}} }

func (s staticSource) Subscription(plugins.ID) (*pluginpkg.Subscription, bool) { return s.sub, true }

func TestDispatcher_DeliversResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	echo := &plugintest.Echo{}
	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"echo": echo})

	ch := make(chan plugins.Message, 1)
	d := host.NewDispatcher(ch, time.Second, nil)
	defer d.Close()

	cmds := r.Update(context.Background(), ids["echo"], pluginpkg.Wrap("ping"))
	require.Len(t, cmds, 2, "nil commands are dropped by the registry")
	d.Dispatch(cmds)

	msg := receive(t, ch)
	assert.Equal(t, ids["echo"], msg.ID)
	pong, ok := pluginpkg.As[string](msg.Envelope)
	require.True(t, ok)
	assert.Equal(t, "pong", pong)

	select {
	case extra := <-ch:
		t.Fatalf("empty command produced a message: %v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDispatcher_TimesOutCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"sleeper": sleeper{}})
	ch := make(chan plugins.Message, 1)
	d := host.NewDispatcher(ch, 10*time.Millisecond, nil)

	d.Dispatch(r.Update(context.Background(), ids["sleeper"], pluginpkg.Wrap("go")))
	d.Close()
	assert.Empty(t, ch)

	d.Dispatch(r.Update(context.Background(), ids["sleeper"], pluginpkg.Wrap("go")))
	assert.Empty(t, ch, "dispatch after close is dropped")
}

func TestSettle(t *testing.T) {
	echo := &plugintest.Echo{}
	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"echo": echo})

	cmds := r.Update(context.Background(), ids["echo"], pluginpkg.Wrap("ping"))
	n := host.Settle(context.Background(), r, cmds, time.Second)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ping", "pong"}, echo.Received)
}

func TestSettle_StopsOnTimeout(t *testing.T) {
	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"sleeper": sleeper{}})

	cmds := r.Update(context.Background(), ids["sleeper"], pluginpkg.Wrap("go"))
	start := time.Now()
	assert.Zero(t, host.Settle(context.Background(), r, cmds, 10*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

// lingering keeps running plugin code for a moment after it is cancelled,
// and records when that code returns.
type lingering struct {
	pluginpkg.Base
	journal *plugintest.Journal
}

func (*lingering) View() pluginpkg.Node { return pluginpkg.Text("lingering") }

func (l *lingering) Update(pluginpkg.Envelope) []pluginpkg.Command {
	return []pluginpkg.Command{func(ctx context.Context) pluginpkg.Envelope {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		l.journal.Record("command finished")
		return pluginpkg.Wrap("late")
	}}
}

func (l *lingering) Subscription() *pluginpkg.Subscription {
	return &pluginpkg.Subscription{
		Key: "linger",
		Run: func(ctx context.Context, _ func(pluginpkg.Envelope)) {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			l.journal.Record("subscription finished")
		},
	}
}

func TestUnload_WaitsForPluginCode(t *testing.T) {
	defer goleak.VerifyNone(t)

	loader := plugintest.NewLoader()
	p := &lingering{journal: loader.Journal}
	loader.Add("p", func() pluginpkg.Plugin { return p })
	r := plugins.NewRegistry(loader)
	defer func() { _ = r.Close() }()
	id, err := r.Load(context.Background(), "p")
	require.NoError(t, err)

	ch := make(chan plugins.Message, 1)
	subs := host.NewSubscriptions(ch, nil)
	defer subs.Close()
	d := host.NewDispatcher(ch, time.Hour, nil)
	defer d.Close()

	subs.Sync(r)
	d.Dispatch(r.Update(context.Background(), id, pluginpkg.Wrap("go")))
	assert.Equal(t, 1, d.Pending(id))

	subs.Stop(id)
	d.Cancel(id)
	require.NoError(t, r.Unload(id))

	assert.Equal(t, []string{"open:p", "subscription finished", "command finished", "release:p"}, loader.Journal.Events(),
		"the library is released only after its subscription and commands return")
	assert.Zero(t, d.Pending(id))
	assert.Empty(t, subs.Keys())
	assert.Empty(t, ch, "results of cancelled commands are dropped")
}

func TestSubscriptions_StopUnknownID(t *testing.T) {
	defer goleak.VerifyNone(t)

	subs := host.NewSubscriptions(make(chan plugins.Message), nil)
	defer subs.Close()
	subs.Stop(3)
	assert.Empty(t, subs.Keys())
}

func TestDispatcher_CancelLeavesOtherPlugins(t *testing.T) {
	defer goleak.VerifyNone(t)

	echo := &plugintest.Echo{}
	r, ids := newRegistry(t, map[string]pluginpkg.Plugin{"echo": echo, "sleeper": sleeper{}})

	ch := make(chan plugins.Message, 4)
	d := host.NewDispatcher(ch, time.Hour, nil)
	defer d.Close()

	d.Dispatch(r.Update(context.Background(), ids["sleeper"], pluginpkg.Wrap("go")))
	require.Equal(t, 1, d.Pending(ids["sleeper"]))

	d.Cancel(ids["sleeper"])
	assert.Zero(t, d.Pending(ids["sleeper"]))

	d.Dispatch(r.Update(context.Background(), ids["echo"], pluginpkg.Wrap("ping")))
	assert.Equal(t, ids["echo"], receive(t, ch).ID, "other plugins keep their commands")
	assert.Empty(t, ch)
}
