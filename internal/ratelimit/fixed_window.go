package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/imgprompt/internal/logger"
)

// FixedWindow is the in-process rate window. One instance is shared by every
// request; the read-modify-write of the counter happens under mu, and no lock
// is held while a caller waits.
type FixedWindow struct {
	rule  Rule
	clock Clock

	mu           sync.Mutex
	requestCount int
	windowStart  time.Time
}

// Snapshot is a point-in-time copy of the window state.
type Snapshot struct {
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
	Limit        int       `json:"limit"`
	Window       string    `json:"window"`
}

// NewFixedWindow creates a window that starts now. A nil clock uses the real clock.
func NewFixedWindow(rule Rule, clock Clock) (*FixedWindow, error) {
	if !rule.valid() {
		return nil, fmt.Errorf("rate limit rule must have positive values: %+v", rule)
	}
	if clock == nil {
		clock = RealClock()
	}
	return &FixedWindow{
		rule:        rule,
		clock:       clock,
		windowStart: clock.Now(),
	}, nil
}

// TryAcquire reserves a call if the window has room. When it does not, ok is
// false and wait is how long until the window rolls over.
func (w *FixedWindow) TryAcquire() (wait time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	elapsed := now.Sub(w.windowStart)
	if elapsed > w.rule.Window {
		w.requestCount = 0
		w.windowStart = now
		elapsed = 0
	}

	if w.requestCount < w.rule.Requests {
		w.requestCount++
		return 0, true
	}

	wait = w.rule.Window - elapsed
	if wait <= 0 {
		// Exactly on the boundary: the old window is spent, open a new one.
		w.requestCount = 1
		w.windowStart = now
		return 0, true
	}
	return wait, false
}

// Acquire implements Limiter.
func (w *FixedWindow) Acquire(ctx context.Context) error {
	for {
		wait, ok := w.TryAcquire()
		if ok {
			return nil
		}

		logger.With(logger.Fields{
			"wait_ms": wait.Milliseconds(),
			"limit":   w.rule.Requests,
		}).Info(ctx, "Rate limit reached, waiting for window rollover")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(wait):
		}
	}
}

// Snapshot returns the current counter state.
func (w *FixedWindow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		RequestCount: w.requestCount,
		WindowStart:  w.windowStart,
		Limit:        w.rule.Requests,
		Window:       w.rule.Window.String(),
	}
}

// Rule returns the configured ceiling.
func (w *FixedWindow) Rule() Rule {
	return w.rule
}
