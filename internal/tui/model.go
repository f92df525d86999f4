// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package tui is the interactive terminal host. It owns a plugin registry,
// draws every plugin as a pane, and routes key presses, command results and
// subscription messages back to the plugins.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/paneplug/paneplug/internal/host"
	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// PluginMsg carries a command result or subscription message into the
// program.
type PluginMsg plugins.Message

// Model is the bubbletea model of the host.
type Model struct {
	reg      *plugins.Registry
	panes    []plugins.ID
	focus    int
	styles   Styles
	logger   *slog.Logger
	msgs     chan plugins.Message
	done     chan struct{}
	subs     *host.Subscriptions
	dispatch *host.Dispatcher
	status   string
	width    int

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Model.
type Option func(*options)

type options struct {
	commandTimeout time.Duration
	styles         Styles
	logger         *slog.Logger
	panes          []plugins.ID
}

// WithCommandTimeout bounds each plugin command.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *options) { o.commandTimeout = d }
}

// WithStyles replaces the default styles.
func WithStyles(st Styles) Option {
	return func(o *options) { o.styles = st }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPanes fixes the panes and their order. Ids that are not loaded are
// drawn as placeholders. By default every loaded plugin gets a pane.
func WithPanes(ids ...plugins.ID) Option {
	return func(o *options) { o.panes = ids }
}

// New creates a model that takes ownership of reg: quitting closes it.
func New(reg *plugins.Registry, opts ...Option) *Model {
	o := options{
		commandTimeout: host.DefaultCommandTimeout,
		styles:         DefaultStyles(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	panes := o.panes
	if panes == nil {
		for _, e := range reg.List() {
			panes = append(panes, e.ID)
		}
	}

	msgs := make(chan plugins.Message, 64)
	return &Model{
		reg:      reg,
		panes:    panes,
		styles:   o.styles,
		logger:   o.logger,
		msgs:     msgs,
		done:     make(chan struct{}),
		subs:     host.NewSubscriptions(msgs, o.logger),
		dispatch: host.NewDispatcher(msgs, o.commandTimeout, o.logger),
	}
}

// Init starts subscriptions and waits for plugin messages.
func (m *Model) Init() tea.Cmd {
	m.subs.Sync(m.reg)
	return m.wait()
}

// wait returns a command that yields the next plugin message, or nothing
// once the model has shut down.
func (m *Model) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.msgs:
			return PluginMsg(msg)
		case <-m.done:
			return nil
		}
	}
}

// Update handles keys and plugin messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Shutdown()
			return m, tea.Quit
		case "tab", "down", "j":
			m.moveFocus(1)
		case "shift+tab", "up", "k":
			m.moveFocus(-1)
		case "enter", " ":
			m.press()
		case "u":
			m.unloadFocused()
		}
		return m, nil

	case PluginMsg:
		m.deliver(msg.ID, msg.Envelope)
		return m, m.wait()
	}

	return m, nil
}

// target is one interactive element on screen.
type target struct {
	pane int
	node pluginpkg.Node
}

// pane is one rendered pane; ok is false when its plugin is not loaded.
type pane struct {
	view pluginpkg.Node
	ok   bool
}

// render asks every loaded plugin for its view once.
func (m *Model) render() []pane {
	out := make([]pane, len(m.panes))
	for i, id := range m.panes {
		out[i].view, out[i].ok = m.reg.View(id)
	}
	return out
}

func targetsOf(panes []pane) []target {
	var out []target
	for i, p := range panes {
		if !p.ok {
			continue
		}
		for _, n := range p.view.Interactive() {
			out = append(out, target{pane: i, node: n})
		}
	}
	return out
}

func (m *Model) moveFocus(delta int) {
	n := len(targetsOf(m.render()))
	if n == 0 {
		m.focus = 0
		return
	}
	m.focus = ((m.focus+delta)%n + n) % n
}

// focusedIn clamps the focus to ts and returns the focused element.
func (m *Model) focusedIn(ts []target) (target, bool) {
	if len(ts) == 0 {
		return target{}, false
	}
	if m.focus >= len(ts) {
		m.focus = len(ts) - 1
	}
	return ts[m.focus], true
}

func (m *Model) focused() (target, bool) {
	return m.focusedIn(targetsOf(m.render()))
}

// press activates the focused element. The element keeps its envelope so it
// can be pressed again; the plugin receives a copy.
func (m *Model) press() {
	t, ok := m.focused()
	if !ok {
		return
	}
	msg, ok := plugins.Untag(t.node.OnPress)
	if !ok {
		return
	}
	m.deliver(msg.ID, msg.Envelope.Clone())
}

func (m *Model) deliver(id plugins.ID, env pluginpkg.Envelope) {
	cmds := m.reg.Update(context.Background(), id, env)
	m.dispatch.Dispatch(cmds)
	m.subs.Sync(m.reg)
}

func (m *Model) unloadFocused() {
	t, ok := m.focused()
	if !ok {
		return
	}
	id := m.panes[t.pane]
	// Nothing may run plugin code once its library is released.
	m.subs.Stop(id)
	m.dispatch.Cancel(id)
	if err := m.reg.Unload(id); err != nil {
		m.status = fmt.Sprintf("unload #%d: %v", id, err)
	} else {
		m.status = fmt.Sprintf("unloaded #%d", id)
	}
	m.subs.Sync(m.reg)
	if _, ok := m.focused(); !ok {
		m.focus = 0
	}
}

// Shutdown stops subscriptions and commands, then closes the registry.
// It is safe to call more than once.
func (m *Model) Shutdown() {
	m.closeOnce.Do(func() {
		m.subs.Close()
		m.dispatch.Close()
		close(m.done)
		m.closeErr = m.reg.Close()
		if m.closeErr != nil {
			m.logger.Error("registry teardown failed", "error", m.closeErr)
		}
	})
}

// Err returns the registry teardown error after Shutdown.
func (m *Model) Err() error { return m.closeErr }

// View draws every pane.
func (m *Model) View() string {
	st := m.styles
	panes := m.render()
	ts := targetsOf(panes)
	focusPane, focusIndex := -1, 0
	if t, ok := m.focusedIn(ts); ok {
		focusPane = t.pane
		for _, prev := range ts[:m.focus] {
			if prev.pane == t.pane {
				focusIndex++
			}
		}
	}

	sections := []string{st.Title.Render(fmt.Sprintf("paneplug  %d plugin(s)", m.reg.Len()))}
	for i, id := range m.panes {
		style := st.Pane
		if i == focusPane {
			style = st.FocusedPane
		}
		if m.width > 2 {
			style = style.Width(m.width - 2)
		}

		entry, ok := m.reg.Get(id)
		if !ok || !panes[i].ok {
			sections = append(sections, style.Render(st.Placeholder.Render(fmt.Sprintf("plugin #%d is not loaded", id))))
			continue
		}

		focus := -1
		if i == focusPane {
			focus = focusIndex
		}
		title := st.PaneTitle.Render(fmt.Sprintf("#%d %s %s (%s)", id, entry.Name, entry.Version, entry.Runtime))
		sections = append(sections, style.Render(lipgloss.JoinVertical(lipgloss.Left, title, RenderNode(panes[i].view, focus, st))))
	}

	if m.status != "" {
		sections = append(sections, st.Status.Render(m.status))
	}
	sections = append(sections, st.Help.Render(strings.Join([]string{
		"[tab/shift+tab] focus", "[enter] press", "[u] unload", "[q] quit",
	}, " | ")))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
