// Package ratelimit implements the fixed-window request limiter that
// guards the generation endpoint. It is best-effort and non-authoritative
// (the HMAC signature is the real boundary): counters may reset on
// restart with the memory store, and a store failure fails open.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMax         = 10
	DefaultBurst       = 5
	DefaultBurstWindow = 10 * time.Second
)

// State is the post-increment view of one caller's window.
type State struct {
	Count       int64
	WindowStart time.Time
	Tripped     bool
}

// Store is a counter with window TTL semantics. Take increments the
// caller's counter for the window containing now and returns the new
// state; Trip marks the window blocked until it resets.
type Store interface {
	Take(ctx context.Context, key string, now time.Time, window time.Duration) (State, error)
	Trip(ctx context.Context, key string, now time.Time, window time.Duration) error
}

// Result is what the HTTP layer needs to answer a request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	store       Store
	window      time.Duration
	max         int64
	burst       int64
	burstWindow time.Duration

	// Now is injectable for tests.
	Now func() time.Time
}

func New(store Store) *Limiter {
	return &Limiter{
		store:       store,
		window:      DefaultWindow,
		max:         DefaultMax,
		burst:       DefaultBurst,
		burstWindow: DefaultBurstWindow,
		Now:         time.Now,
	}
}

// Check counts the request against the caller's window. The burst guard
// runs before the main cap: more than burst requests inside the first
// burstWindow seconds of a window block the key until the window resets,
// even if the main cap was never reached.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	now := l.Now()
	st, err := l.store.Take(ctx, key, now, l.window)
	if err != nil {
		// Fail open: the limiter is defense-in-depth, not a security boundary.
		log.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, allowing request")
		return Result{Allowed: true, Remaining: int(l.max), ResetAt: now.Add(l.window)}
	}

	resetAt := st.WindowStart.Add(l.window)
	if st.Tripped {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	if st.Count > l.burst && now.Sub(st.WindowStart) < l.burstWindow {
		if err := l.store.Trip(ctx, key, now, l.window); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate limit trip failed")
		}
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	if st.Count > l.max {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	remaining := l.max - st.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: int(remaining), ResetAt: resetAt}
}

// Limit reports the window cap (for X-RateLimit-Limit).
func (l *Limiter) Limit() int { return int(l.max) }
