package model

import (
	"sync"
)

// ConnectionState is the lifecycle state of an adapter's live socket.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// MessageStats is a snapshot of an adapter's running message counters.
type MessageStats struct {
	Total           uint64            `json:"total"`
	Relevant        uint64            `json:"relevant"`
	Filtered        uint64            `json:"filtered"`
	Results         uint64            `json:"results"`
	RelevantResults uint64            `json:"relevantResults"`
	Malformed       uint64            `json:"malformed"`
	ByType          map[string]uint64 `json:"byType"`
}

// StatsCounter accumulates MessageStats. Counters only grow.
type StatsCounter struct {
	mu sync.Mutex
	s  MessageStats
}

// Observe records one parsed message.
func (c *StatsCounter) Observe(msgType string, relevant, result bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Total++
	if c.s.ByType == nil {
		c.s.ByType = make(map[string]uint64)
	}
	c.s.ByType[msgType]++
	if result {
		c.s.Results++
	}
	if !relevant {
		c.s.Filtered++
		return
	}
	c.s.Relevant++
	if result {
		c.s.RelevantResults++
	}
}

// Malformed records a frame that could not be parsed.
func (c *StatsCounter) Malformed() {
	c.mu.Lock()
	c.s.Total++
	c.s.Malformed++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (c *StatsCounter) Snapshot() MessageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.s
	out.ByType = make(map[string]uint64, len(c.s.ByType))
	for k, v := range c.s.ByType {
		out.ByType[k] = v
	}
	return out
}
