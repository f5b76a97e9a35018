// Package cache stores upstream REST payloads for a bounded time.
package cache

import (
	"context"
)

// Cache is a keyed payload store. Misses and backend failures both report
// ok=false; callers refetch from upstream.
type Cache interface {
	Get(ctx context.Context, key string) (payload []byte, ok bool)
	Set(ctx context.Context, key string, payload []byte)
	Delete(ctx context.Context, key string)
	Len() int
}
