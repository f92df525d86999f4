// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Plugin table methods. All are optional except view.
const (
	methodView         = "view"
	methodUpdate       = "update"
	methodSubscription = "subscription"
	methodName         = "name"
	methodVersion      = "version"
	methodClose        = "close"
)

// Subscription table fields.
const (
	fieldKey   = "key"
	fieldEvery = "every"
)

var errDropped = errors.New("plugin instance dropped")

// luaMessage carries a script value through the host. It is only meaningful
// to the state that created it.
type luaMessage struct {
	L     *lua.LState
	value lua.LValue
}

// instance adapts a plugin table to pluginpkg.Plugin. An LState is not safe
// for concurrent use, so every call holds mu.
type instance struct {
	mu      sync.Mutex
	L       *lua.LState
	self    *lua.LTable
	timeout time.Duration
	logger  *slog.Logger
	stem    string
}

func (p *instance) wrap(v lua.LValue) pluginpkg.Envelope {
	if v == lua.LNil {
		return pluginpkg.Envelope{}
	}
	return pluginpkg.Wrap(luaMessage{L: p.L, value: v})
}

// callFunc calls fn with args and returns its first result.
func (p *instance) callFunc(fn lua.LValue, args ...lua.LValue) (lua.LValue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, err
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)
	return ret, nil
}

// method calls self:name(args...). A missing method yields nil.
func (p *instance) method(name string, args ...lua.LValue) (lua.LValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.methodLocked(name, args...)
}

func (p *instance) methodLocked(name string, args ...lua.LValue) (lua.LValue, error) {
	if p.self == nil {
		return lua.LNil, errDropped
	}
	fn := p.L.GetField(p.self, name)
	if fn == lua.LNil {
		return lua.LNil, nil
	}
	return p.callFunc(fn, append([]lua.LValue{p.self}, args...)...)
}

func (p *instance) Name() string {
	v, err := p.method(methodName)
	if err != nil || v == lua.LNil {
		return p.stem
	}
	return v.String()
}

func (p *instance) Version() string {
	v, err := p.method(methodVersion)
	if err != nil || v == lua.LNil {
		return pluginpkg.DefaultVersion
	}
	return v.String()
}

func (p *instance) View() pluginpkg.Node {
	v, err := p.method(methodView)
	if err != nil {
		p.logger.Warn("lua view failed", "error", err)
		return pluginpkg.Text("plugin failed to render")
	}
	n, err := toNode(v, p.wrap)
	if err != nil {
		p.logger.Warn("plugin returned an invalid view", "error", err)
		return pluginpkg.Text("plugin returned an invalid view")
	}
	return n
}

func (p *instance) Update(msg pluginpkg.Envelope) []pluginpkg.Command {
	m, ok := pluginpkg.As[luaMessage](msg)
	if !ok || m.L != p.L {
		p.logger.Debug("ignoring message not issued by plugin", "message", msg.String())
		return nil
	}

	v, err := p.method(methodUpdate, m.value)
	if err != nil {
		p.logger.Warn("lua update failed", "error", err)
		return nil
	}
	list, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}

	var cmds []pluginpkg.Command
	for i := 1; i <= list.Len(); i++ {
		cmd, err := toCommand(list.RawGetInt(i), p.wrap)
		if err != nil {
			p.logger.Warn("skipping invalid command", "index", i, "error", err)
			continue
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Subscription reads {key = ..., every = seconds, message = ...}. A function
// message is called with the tick time in unix seconds on every tick.
func (p *instance) Subscription() *pluginpkg.Subscription {
	v, err := p.method(methodSubscription)
	if err != nil {
		p.logger.Warn("lua subscription failed", "error", err)
		return nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}

	key, ok := t.RawGetString(fieldKey).(lua.LString)
	every, ok2 := t.RawGetString(fieldEvery).(lua.LNumber)
	if !ok || !ok2 || key == "" || every <= 0 {
		p.logger.Warn("invalid subscription", "subscription", describe(t))
		return nil
	}

	msg := t.RawGetString(fieldMessage)
	return pluginpkg.Every(string(key), seconds(every), func(tick time.Time) pluginpkg.Envelope {
		if _, ok := msg.(*lua.LFunction); !ok {
			return p.wrap(msg)
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.self == nil {
			return pluginpkg.Envelope{}
		}
		out, err := p.callFunc(msg, lua.LNumber(tick.Unix()))
		if err != nil {
			p.logger.Warn("lua subscription message failed", "key", string(key), "error", err)
			return pluginpkg.Envelope{}
		}
		return p.wrap(out)
	})
}

// Close calls the optional close method and drops the plugin table.
func (p *instance) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.self == nil {
		return nil
	}
	_, err := p.methodLocked(methodClose)
	p.self = nil
	if err != nil {
		return fmt.Errorf("lua close: %w", err)
	}
	return nil
}

func describe(t *lua.LTable) string {
	var b []byte
	t.ForEach(func(k, v lua.LValue) {
		b = fmt.Appendf(b, "%s=%s ", k, v)
	})
	return string(b)
}
