package cache

import (
	"time"

	"github.com/okian/tablewire/pkg/logger"
)

// Option configures a Memory cache.
type Option func(*Memory)

// WithTTL sets how long an entry is served after insertion.
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the number of entries; the oldest insertion is
// evicted first once the bound is exceeded.
func WithMaxEntries(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithRedisPrefix namespaces keys written to Redis.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisTTL sets the Redis expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRedisLogger sets the logger used to report backend failures.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.log = l
		}
	}
}
