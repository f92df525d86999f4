// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// markStyles renders buttons with visible markers instead of colours.
func markStyles() Styles {
	st := DefaultStyles()
	st.Button = lipgloss.NewStyle().SetString("[").Inline(true)
	st.FocusedButton = lipgloss.NewStyle().SetString(">").Inline(true)
	st.DisabledButton = lipgloss.NewStyle().SetString("x").Inline(true)
	return st
}

func TestRenderNode(t *testing.T) {
	tree := pluginpkg.Column(
		pluginpkg.Text("title"),
		pluginpkg.Row(
			pluginpkg.Button("A", pluginpkg.Wrap(1)),
			pluginpkg.Button("off", pluginpkg.Envelope{}),
			pluginpkg.Button("B", pluginpkg.Wrap(2)),
		),
		pluginpkg.Space(),
		pluginpkg.Text("footer"),
	)

	out := RenderNode(tree, 1, markStyles())
	lines := strings.Split(out, "\n")

	assert.Len(t, lines, 4)
	assert.Equal(t, "title", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "[ A x off > B", strings.TrimRight(lines[1], " "))
	assert.Equal(t, "footer", strings.TrimRight(lines[3], " "))
}

func TestRenderNode_NoFocus(t *testing.T) {
	out := RenderNode(pluginpkg.Button("A", pluginpkg.Wrap(1)), -1, markStyles())
	assert.Equal(t, "[ A", out)
}
