package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultTTL        = 30 * time.Second
	defaultMaxEntries = 100
)

type entry struct {
	payload    []byte
	insertedAt time.Time
}

// Memory is a bounded TTL cache. Reads never refresh an entry's position, so
// eviction follows insertion order rather than access order. Expiry is checked
// on read; no background goroutine is started.
type Memory struct {
	lru        *lru.Cache[string, entry]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory creates an in-process cache.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	c, err := lru.New[string, entry](m.maxEntries)
	if err != nil {
		c, _ = lru.New[string, entry](defaultMaxEntries)
	}
	m.lru = c
	return m
}

// Get returns the payload while now - insertedAt < ttl; an expired entry is
// evicted on read.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.lru.Peek(key)
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.insertedAt) >= m.ttl {
		m.lru.Remove(key)
		return nil, false
	}
	return e.payload, true
}

// Set stores payload under key, replacing any previous entry.
func (m *Memory) Set(_ context.Context, key string, payload []byte) {
	m.lru.Add(key, entry{payload: payload, insertedAt: m.now()})
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.lru.Remove(key)
}

// Len returns the number of stored entries, expired ones included until
// they are read or evicted.
func (m *Memory) Len() int {
	return m.lru.Len()
}
