package cache

import (
	"context"
	"errors"
	"time"

	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// Redis is a shared cache tier. Backend errors are logged and reported as
// misses so the caller falls through to upstream.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "tablewire:",
		ttl:    defaultTTL,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.fail(ctx, "redis get failed", key, err)
		}
		return nil, false
	}
	return b, true
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, payload []byte) {
	if err := r.client.Set(ctx, r.prefix+key, payload, r.ttl).Err(); err != nil {
		r.fail(ctx, "redis set failed", key, err)
	}
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		r.fail(ctx, "redis del failed", key, err)
	}
}

// Len is unknown for a shared tier and always returns 0.
func (r *Redis) Len() int { return 0 }

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) fail(ctx context.Context, msg, key string, err error) {
	r.log.Warn(ctx, msg, logger.String("key", key), logger.Error(err))
	metrics.RecordErrorByComponent("cache", "redis")
}
