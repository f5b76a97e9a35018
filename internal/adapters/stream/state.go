// Package stream wraps upstream live sockets and tracks their lifecycle.
package stream

import (
	"sync"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/pkg/metrics"
)

// Status is a snapshot of a Tracker.
type Status struct {
	State             model.ConnectionState
	ReconnectAttempts int
	LastError         string
}

// Tracker holds the connection state machine of one adapter. Only the
// supervisor and the socket lifecycle move it.
type Tracker struct {
	provider string

	mu       sync.RWMutex
	state    model.ConnectionState
	attempts int
	lastErr  string
}

// NewTracker starts in the disconnected state.
func NewTracker(provider string) *Tracker {
	t := &Tracker{provider: provider, state: model.StateDisconnected}
	metrics.UpdateConnectionState(provider, metrics.StateDisconnected)
	return t
}

// Connecting marks a dial in progress.
func (t *Tracker) Connecting() { t.set(model.StateConnecting, nil, false) }

// Connected marks an open socket and resets the attempt counter.
func (t *Tracker) Connected() { t.set(model.StateConnected, nil, true) }

// Failed records an abnormal end of a connection.
func (t *Tracker) Failed(err error) { t.set(model.StateError, err, false) }

// Disconnected marks the socket closed with no reconnect pending. A non-nil
// err is kept as the last error.
func (t *Tracker) Disconnected(err error) { t.set(model.StateDisconnected, err, false) }

// Attempt increments the reconnect counter and returns the new value.
func (t *Tracker) Attempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	metrics.RecordReconnectAttempt(t.provider)
	return t.attempts
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{State: t.state, ReconnectAttempts: t.attempts, LastError: t.lastErr}
}

// State returns the current state.
func (t *Tracker) State() model.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) set(state model.ConnectionState, err error, resetAttempts bool) {
	t.mu.Lock()
	t.state = state
	if err != nil {
		t.lastErr = err.Error()
	}
	if resetAttempts {
		t.attempts = 0
		t.lastErr = ""
	}
	t.mu.Unlock()
	metrics.UpdateConnectionState(t.provider, gaugeValue(state))
}

func gaugeValue(s model.ConnectionState) int {
	switch s {
	case model.StateConnecting:
		return metrics.StateConnecting
	case model.StateConnected:
		return metrics.StateConnected
	case model.StateError:
		return metrics.StateError
	default:
		return metrics.StateDisconnected
	}
}
