package cache

import (
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// FromConfig builds the response cache described by cfg: a local LRU, backed
// by Redis when an address is set. The returned func releases the Redis
// client and is never nil.
func FromConfig(cfg config.CacheConfig, log logger.Logger) (Cache, func() error) {
	local := NewMemory(WithTTL(cfg.TTL), WithMaxEntries(cfg.MaxEntries))
	if cfg.RedisAddr == "" {
		return local, func() error { return nil }
	}
	shared := NewRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}),
		WithRedisPrefix(cfg.RedisPrefix),
		WithRedisTTL(cfg.TTL),
		WithRedisLogger(log),
	)
	return NewTiered(local, shared), shared.Close
}
