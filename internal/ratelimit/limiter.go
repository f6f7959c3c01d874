// Package ratelimit gates outbound calls to the vision provider with a single
// global fixed-window counter.
package ratelimit

import (
	"context"
	"time"
)

// Limiter blocks the caller until an outbound call may proceed.
type Limiter interface {
	// Acquire reserves one call in the current window, waiting for the window
	// to roll over when the ceiling is reached. It returns ctx.Err() if the
	// context ends while waiting.
	Acquire(ctx context.Context) error
}

// Rule is the ceiling applied to each window.
type Rule struct {
	Requests int
	Window   time.Duration
}

// DefaultRule matches the provider's free-tier quota: 15 calls per minute.
var DefaultRule = Rule{Requests: 15, Window: time.Minute}

func (r Rule) valid() bool {
	return r.Requests > 0 && r.Window > 0
}
