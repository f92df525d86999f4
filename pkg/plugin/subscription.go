// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package plugin

import (
	"context"
	"time"
)

// Subscription is a long-lived source of messages.
//
// Hosts ask for the subscription after every update and restart it only when
// Key changes, so a plugin can switch sources by returning a different key.
type Subscription struct {
	Key string
	// Run emits messages until ctx is done. It must return after ctx is done.
	Run func(ctx context.Context, emit func(Envelope))
}

// Every returns a subscription that emits msg(t) on every tick of interval.
func Every(key string, interval time.Duration, msg func(time.Time) Envelope) *Subscription {
	return &Subscription{
		Key: key,
		Run: func(ctx context.Context, emit func(Envelope)) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-ticker.C:
					emit(msg(t))
				}
			}
		},
	}
}

// Map returns a subscription with the same key whose messages pass through f.
func (s *Subscription) Map(f func(Envelope) Envelope) *Subscription {
	if s == nil {
		return nil
	}
	run := s.Run
	return &Subscription{
		Key: s.Key,
		Run: func(ctx context.Context, emit func(Envelope)) {
			run(ctx, func(e Envelope) {
				if e.IsZero() {
					return
				}
				emit(f(e))
			})
		},
	}
}
