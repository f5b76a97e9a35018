// Package ratelimit spaces outbound upstream calls by a minimum interval.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between calls. A call made too soon
// waits for the remainder; it is never dropped.
type Limiter struct {
	lim      *rate.Limiter
	interval time.Duration
}

// New creates a limiter. A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{lim: rate.NewLimiter(limit, 1), interval: interval}
}

// Wait blocks until the next call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }
