// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package lua

import (
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// uiModule is the global table scripts build render trees with.
const uiModule = "ui"

// Field names of a render node table.
const (
	fieldKind     = "kind"
	fieldText     = "text"
	fieldMessage  = "message"
	fieldChildren = "children"
)

// openUI installs the ui table. Each constructor returns a plain table, so
// scripts may also build nodes by hand:
//
//	ui.column(ui.button("Add", "add"), ui.text(tostring(n)))
//	{kind = "text", text = "hello"}
func openUI(L *lua.LState) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"text":   uiText,
		"button": uiButton,
		"column": uiContainer(pluginpkg.KindColumn),
		"row":    uiContainer(pluginpkg.KindRow),
		"space":  uiSpace,
	})
	L.SetGlobal(uiModule, mod)
}

func newNode(L *lua.LState, kind pluginpkg.Kind) *lua.LTable {
	t := L.NewTable()
	t.RawSetString(fieldKind, lua.LString(kind.String()))
	return t
}

func uiText(L *lua.LState) int {
	t := newNode(L, pluginpkg.KindText)
	t.RawSetString(fieldText, lua.LString(L.ToStringMeta(L.Get(1)).String()))
	L.Push(t)
	return 1
}

func uiButton(L *lua.LState) int {
	t := newNode(L, pluginpkg.KindButton)
	t.RawSetString(fieldText, lua.LString(L.CheckString(1)))
	t.RawSetString(fieldMessage, L.Get(2))
	L.Push(t)
	return 1
}

func uiContainer(kind pluginpkg.Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		t := newNode(L, kind)
		children := L.NewTable()
		for i := 1; i <= L.GetTop(); i++ {
			children.Append(L.Get(i))
		}
		t.RawSetString(fieldChildren, children)
		L.Push(t)
		return 1
	}
}

func uiSpace(L *lua.LState) int {
	L.Push(newNode(L, pluginpkg.KindSpace))
	return 1
}

// toNode converts a node table into a render tree. wrap turns a button's Lua
// message into an envelope; a nil message leaves the button disabled.
func toNode(v lua.LValue, wrap func(lua.LValue) pluginpkg.Envelope) (pluginpkg.Node, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return pluginpkg.Node{}, fmt.Errorf("node must be a table, got %s", v.Type())
	}

	kindName := t.RawGetString(fieldKind)
	kind, ok := pluginpkg.ParseKind(kindName.String())
	if !ok || kindName.Type() != lua.LTString {
		return pluginpkg.Node{}, fmt.Errorf("unknown node kind %q", kindName.String())
	}

	n := pluginpkg.Node{Kind: kind}
	if text := t.RawGetString(fieldText); text != lua.LNil {
		n.Text = text.String()
	}
	if kind == pluginpkg.KindButton {
		if msg := t.RawGetString(fieldMessage); msg != lua.LNil {
			n.OnPress = wrap(msg)
		}
	}

	if kind != pluginpkg.KindColumn && kind != pluginpkg.KindRow {
		return n, nil
	}
	children, ok := t.RawGetString(fieldChildren).(*lua.LTable)
	if !ok {
		return n, nil
	}
	for i := 1; i <= children.Len(); i++ {
		child, err := toNode(children.RawGetInt(i), wrap)
		if err != nil {
			return pluginpkg.Node{}, fmt.Errorf("child %d: %w", i, err)
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// cmdModule is the global table scripts build commands with.
const cmdModule = "cmd"

// Command kinds understood by toCommand.
const (
	cmdSend  = "send"
	cmdAfter = "after"
)

const fieldDelay = "delay"

// openCmd installs the cmd table:
//
//	return { cmd.send("refresh"), cmd.after(1.5, "tick") }
func openCmd(L *lua.LState) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		cmdSend: func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString(fieldKind, lua.LString(cmdSend))
			t.RawSetString(fieldMessage, L.CheckAny(1))
			L.Push(t)
			return 1
		},
		cmdAfter: func(L *lua.LState) int {
			t := L.NewTable()
			t.RawSetString(fieldKind, lua.LString(cmdAfter))
			t.RawSetString(fieldDelay, L.CheckNumber(1))
			t.RawSetString(fieldMessage, L.CheckAny(2))
			L.Push(t)
			return 1
		},
	})
	L.SetGlobal(cmdModule, mod)
}

// toCommand converts a command table built by the cmd module.
func toCommand(v lua.LValue, wrap func(lua.LValue) pluginpkg.Envelope) (pluginpkg.Command, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("command must be a table, got %s", v.Type())
	}
	msg := t.RawGetString(fieldMessage)
	if msg == lua.LNil {
		return nil, errors.New("command has no message")
	}

	switch kind := t.RawGetString(fieldKind).String(); kind {
	case cmdSend:
		return pluginpkg.Send(wrap(msg)), nil
	case cmdAfter:
		delay, ok := t.RawGetString(fieldDelay).(lua.LNumber)
		if !ok || delay < 0 {
			return nil, errors.New("after needs a non-negative delay")
		}
		return pluginpkg.After(seconds(delay), wrap(msg)), nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
}

func seconds(n lua.LNumber) time.Duration {
	return time.Duration(float64(n) * float64(time.Second))
}
