// Package worker runs the per-provider dispatch loops that move normalized
// upstream events into the fan-out hub.
//
// Each provider gets exactly one worker, so events from one upstream are
// handled in arrival order. No ordering holds across providers.
package worker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

const (
	poolShutdownTimeout = 10 * time.Second
)

// Source yields a provider's events. The channel is closed when the provider
// shuts down.
type Source interface {
	Events() <-chan model.Event
}

// Handler consumes events, typically by fanning them out to clients.
type Handler interface {
	Dispatch(ctx context.Context, ev model.Event) error
}

// Worker drains one Source into a Handler.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the source closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for its loop to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source  Source
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:   source,
		handler:  handler,
		name:     "dispatch",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Name returns the worker's name.
func (w *InMemoryWorker) Name() string { return w.name }

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				w.logger.Debug(ctx, "event source closed")
				return
			}
			if err := w.handler.Dispatch(ctx, ev); err != nil {
				metrics.RecordErrorByComponent("worker", "dispatch_error")
				w.logger.Error(ctx, "error dispatching event",
					logger.String("provider", ev.Provider),
					logger.String("type", ev.Type),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker. Safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool runs one worker per provider.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates a worker for every named source. Workers are ordered by
// name so start-up and shutdown are deterministic.
func NewPool(handler Handler, sources map[string]Source, log logger.Logger) *Pool {
	if log == nil {
		log = logger.Nop()
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)

	p := &Pool{logger: log}
	for _, name := range names {
		p.workers = append(p.workers, NewInMemoryWorker(sources[name], handler, WithName(name), WithLogger(log)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown stops every worker, waiting up to ctx or the pool timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.name))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
