// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneplug/paneplug/pkg/plugin"
)

func press(t *testing.T, c *Clock, label string) []plugin.Command {
	t.Helper()
	b, ok := c.View().Find(label)
	require.True(t, ok, "no enabled button %q", label)
	return c.Update(b.OnPress.Clone())
}

func TestClock_PauseDropsSubscription(t *testing.T) {
	c := newClock()
	sub := c.Subscription()
	require.NotNil(t, sub)
	assert.Equal(t, "tick", sub.Key)

	press(t, c, "Pause")
	assert.Nil(t, c.Subscription())

	press(t, c, "Resume")
	assert.NotNil(t, c.Subscription())
}

func TestClock_Tick(t *testing.T) {
	c := newClock()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Nil(t, c.Update(plugin.Wrap(tick(at))))
	assert.Equal(t, "03:04:05", c.View().Texts()[0])
}

func TestClock_LapFlashes(t *testing.T) {
	c := newClock()
	_, ok := c.View().Find("Clear")
	assert.False(t, ok, "clear is disabled without laps")

	cmds := press(t, c, "Lap")
	require.Len(t, cmds, 1)
	assert.Contains(t, c.View().Texts()[0], "*")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Update(cmds[0](ctx))
	assert.NotContains(t, c.View().Texts()[0], "*")
	assert.Len(t, c.View().Texts(), 2)

	press(t, c, "Clear")
	assert.Len(t, c.View().Texts(), 1)
}
