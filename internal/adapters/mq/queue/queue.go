// Package queue holds the bounded outbound buffer between the fan-out hub and
// a downstream client's socket writer.
//
// Enqueue never blocks: a slow client loses frames instead of stalling the
// dispatcher that feeds every other client.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tablewire/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 256
)

// Frame is one encoded message ready to be written to a client.
type Frame = []byte

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a frame. Returns ErrFull or ErrClosed when the frame was
	// not accepted.
	Enqueue(ctx context.Context, f Frame) error

	// Dequeue returns the channel frames arrive on. It is closed by Close.
	Dequeue() <-chan Frame

	// Len returns the current number of queued frames.
	Len() int

	// Close stops accepting frames and closes the dequeue channel.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	frames   chan Frame
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.frames = make(chan Frame, q.capacity)
	return q
}

// Enqueue adds a frame to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, f Frame) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.frames <- f:
		return nil
	default:
		metrics.RecordClientFrameDropped()
		return ErrFull
	}
}

// Dequeue returns the receive side of the buffer.
func (q *InMemoryQueue) Dequeue() <-chan Frame {
	return q.frames
}

// Len returns the current number of queued frames.
func (q *InMemoryQueue) Len() int {
	return len(q.frames)
}

// Close gracefully shuts down the queue. Frames already buffered remain
// readable until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.frames)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
