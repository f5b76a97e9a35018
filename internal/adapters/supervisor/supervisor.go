// Package supervisor keeps an upstream live session alive, reconnecting on
// abnormal termination according to a backoff policy.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/tablewire/internal/adapters/stream"
	"github.com/okian/tablewire/pkg/logger"
)

// ErrExhausted is returned once the reconnect budget is spent.
var ErrExhausted = errors.New("reconnect attempts exhausted")

// Session runs one connection until it ends. It calls connected once the
// socket is open. A nil return means a normal closure; the supervisor does
// not reconnect after it.
type Session func(ctx context.Context, connected func()) error

// Supervisor drives a Tracker through repeated Sessions.
type Supervisor struct {
	name        string
	tracker     *stream.Tracker
	newBackOff  func() backoff.BackOff
	maxAttempts int
	log         logger.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBackOff sets the policy factory. A fresh policy is built for each Run.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Supervisor) {
		if f != nil {
			s.newBackOff = f
		}
	}
}

// WithMaxAttempts bounds consecutive failed reconnects; 0 means unbounded.
func WithMaxAttempts(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// Constant returns a fixed-delay policy factory.
func Constant(delay time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff { return backoff.NewConstantBackOff(delay) }
}

// Exponential returns a doubling policy factory capped at maxDelay. It never
// gives up on its own; the attempt bound does that.
func Exponential(initial, maxDelay time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxDelay
		b.Multiplier = 2
		b.RandomizationFactor = 0.2
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

// New creates a supervisor reporting into tracker.
func New(name string, tracker *stream.Tracker, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:        name,
		tracker:     tracker,
		newBackOff:  Constant(5 * time.Second),
		maxAttempts: 5,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes session until it closes normally, ctx is cancelled, or the
// attempt budget is spent. Exhaustion leaves the tracker disconnected.
func (s *Supervisor) Run(ctx context.Context, session Session) error {
	policy := s.newBackOff()
	policy.Reset()
	failures := 0

	for {
		s.tracker.Connecting()
		err := session(ctx, func() {
			failures = 0
			policy.Reset()
			s.tracker.Connected()
		})

		if ctx.Err() != nil {
			s.tracker.Disconnected(nil)
			return ctx.Err()
		}
		if err == nil {
			s.log.Info(ctx, "live stream closed normally")
			s.tracker.Disconnected(nil)
			return nil
		}

		s.tracker.Failed(err)
		failures++
		if s.maxAttempts > 0 && failures > s.maxAttempts {
			s.log.Error(ctx, "giving up on live stream",
				logger.Int("attempts", failures-1),
				logger.Error(err),
			)
			s.tracker.Disconnected(err)
			return fmt.Errorf("%s: %w: %v", s.name, ErrExhausted, err)
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			s.tracker.Disconnected(err)
			return fmt.Errorf("%s: %w: %v", s.name, ErrExhausted, err)
		}
		attempt := s.tracker.Attempt()
		s.log.Warn(ctx, "live stream dropped, reconnecting",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.tracker.Disconnected(nil)
			return ctx.Err()
		case <-timer.C:
		}
	}
}
