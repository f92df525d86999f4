// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package host

import (
	"context"
	"time"

	plugins "github.com/paneplug/paneplug/internal/plugin"
	pluginpkg "github.com/paneplug/paneplug/pkg/plugin"
)

// Updater is the part of a registry Settle feeds messages into.
type Updater interface {
	Update(ctx context.Context, id plugins.ID, env pluginpkg.Envelope) []plugins.Command
}

// MaxSettleRounds bounds how many generations of commands Settle follows.
const MaxSettleRounds = 64

// Settle runs cmds synchronously, delivers each result to r, and follows the
// commands those updates return until none remain, ctx is done, or
// MaxSettleRounds generations have run. Each command gets timeout.
// It reports how many messages were delivered.
//
// Settle is for headless hosts that have no event loop.
func Settle(ctx context.Context, r Updater, cmds []plugins.Command, timeout time.Duration) int {
	delivered := 0
	for round := 0; len(cmds) > 0 && round < MaxSettleRounds && ctx.Err() == nil; round++ {
		var next []plugins.Command
		for _, c := range cmds {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			msg, ok := c.Run(cctx)
			cancel()
			if !ok {
				continue
			}
			delivered++
			next = append(next, r.Update(ctx, msg.ID, msg.Envelope)...)
		}
		cmds = next
	}
	return delivered
}
