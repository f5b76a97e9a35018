// Package filter decides which upstream messages are relevant to the current
// set of subscribed tables.
package filter

import (
	"slices"
	"strings"
	"sync"
)

// Untagged message types that stay relevant while subscriptions are active.
var allowList = map[string]struct{}{
	"state":      {},
	"connection": {},
	"error":      {},
	"heartbeat":  {},
}

// resultSuffix marks the "results updated" class of event types.
const resultSuffix = "ResultsUpdated"

// Verdict is the outcome of evaluating one message.
type Verdict struct {
	// Relevant messages may update local state.
	Relevant bool
	// Forward is set for relevant messages that downstream clients receive.
	Forward bool
}

// IsResult reports whether msgType belongs to the results-updated class.
func IsResult(msgType string) bool {
	return strings.HasSuffix(msgType, resultSuffix)
}

// Allowed reports whether an untagged message of msgType passes while
// subscriptions are active.
func Allowed(msgType string) bool {
	_, ok := allowList[msgType]
	return ok
}

// Set is a concurrency-safe set of subscribed table ids.
type Set struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Add inserts id and reports whether it was absent.
func (s *Set) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Has reports membership.
func (s *Set) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of subscribed ids.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the members in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Evaluate applies the relevance rules to a message:
//   - an empty set passes everything through;
//   - a tagged message is relevant iff its table is subscribed;
//   - an untagged message is relevant iff its type is allow-listed.
//
// Only relevant results-class messages are forwarded.
func (s *Set) Evaluate(tableID, msgType string) Verdict {
	s.mu.RLock()
	empty := len(s.ids) == 0
	_, subscribed := s.ids[tableID]
	s.mu.RUnlock()

	var relevant bool
	switch {
	case empty:
		relevant = true
	case tableID != "":
		relevant = subscribed
	default:
		relevant = Allowed(msgType)
	}
	return Verdict{Relevant: relevant, Forward: relevant && IsResult(msgType)}
}
