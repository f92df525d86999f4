// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package tui

import (
	"github.com/charmbracelet/lipgloss"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Styles controls how panes and render trees are drawn.
type Styles struct {
	Title          lipgloss.Style
	Pane           lipgloss.Style
	FocusedPane    lipgloss.Style
	PaneTitle      lipgloss.Style
	Button         lipgloss.Style
	FocusedButton  lipgloss.Style
	DisabledButton lipgloss.Style
	Placeholder    lipgloss.Style
	Status         lipgloss.Style
	Help           lipgloss.Style
}

// DefaultStyles returns the built-in colour scheme.
func DefaultStyles() Styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().Padding(0, 1)

	return Styles{
		Title:          lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Pane:           pane,
		FocusedPane:    pane.BorderForeground(lipgloss.Color("86")),
		PaneTitle:      lipgloss.NewStyle().Bold(true),
		Button:         button.Foreground(lipgloss.Color("252")).Background(lipgloss.Color("238")),
		FocusedButton:  button.Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("86")),
		DisabledButton: button.Foreground(lipgloss.Color("243")),
		Placeholder:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Status:         lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Help:           lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// RenderNode draws n. focus is the index of the focused element among
// n.Interactive(), or -1 for none.
func RenderNode(n pluginpkg.Node, focus int, st Styles) string {
	r := renderer{focus: focus, st: st}
	return r.render(n)
}

type renderer struct {
	focus int
	next  int
	st    Styles
}

func (r *renderer) render(n pluginpkg.Node) string {
	switch n.Kind {
	case pluginpkg.KindText:
		return n.Text
	case pluginpkg.KindButton:
		if n.OnPress.IsZero() {
			return r.st.DisabledButton.Render(n.Text)
		}
		style := r.st.Button
		if r.next == r.focus {
			style = r.st.FocusedButton
		}
		r.next++
		return style.Render(n.Text)
	case pluginpkg.KindColumn:
		return lipgloss.JoinVertical(lipgloss.Left, r.children(n)...)
	case pluginpkg.KindRow:
		children := r.children(n)
		spaced := make([]string, 0, 2*len(children))
		for i, c := range children {
			if i > 0 {
				spaced = append(spaced, " ")
			}
			spaced = append(spaced, c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, spaced...)
	default:
		return " "
	}
}

func (r *renderer) children(n pluginpkg.Node) []string {
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = r.render(c)
	}
	return out
}
