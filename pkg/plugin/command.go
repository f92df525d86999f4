// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"context"
	"time"
)

// Command is an asynchronous follow-up returned by Update.
// The host runs it off the update loop; a non-zero result is delivered back
// to the same plugin as a message. Commands must return promptly once ctx is
// done.
type Command func(ctx context.Context) Envelope

// Send returns a command that yields msg immediately.
func Send(msg Envelope) Command {
	return func(context.Context) Envelope {
		return msg
	}
}

// After returns a command that yields msg once d has elapsed, or nothing if
// ctx is cancelled first.
func After(d time.Duration, msg Envelope) Command {
	return func(ctx context.Context) Envelope {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Envelope{}
		case <-t.C:
			return msg
		}
	}
}

// Perform returns a command that runs fn and wraps its result.
func Perform[T any](fn func(ctx context.Context) T) Command {
	return func(ctx context.Context) Envelope {
		return Wrap(fn(ctx))
	}
}
