// Package ratelimit bounds outbound calls to external services as N
// requests per fixed window, queueing callers beyond that. A limiter-imposed
// delay is ordinary latency, not an error.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket. The zero value and nil admit everything.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a limiter admitting requests per window with a burst of the
// full window quota. Non-positive arguments disable limiting.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 || window <= 0 {
		return &Limiter{}
	}
	interval := window / time.Duration(requests)
	return &Limiter{rl: rate.NewLimiter(rate.Every(interval), requests)}
}

// Wait blocks until a slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}

// Allow reports whether a call may proceed immediately.
func (l *Limiter) Allow() bool {
	if l == nil || l.rl == nil {
		return true
	}
	return l.rl.Allow()
}
