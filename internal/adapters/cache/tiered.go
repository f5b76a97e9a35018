package cache

import (
	"context"
)

// Tiered checks a fast local tier before a shared one and back-fills the
// local tier on a shared hit.
type Tiered struct {
	local  Cache
	shared Cache
}

// NewTiered composes two caches. A nil shared tier yields local alone.
func NewTiered(local, shared Cache) Cache {
	if shared == nil {
		return local
	}
	return &Tiered{local: local, shared: shared}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if b, ok := t.local.Get(ctx, key); ok {
		return b, true
	}
	b, ok := t.shared.Get(ctx, key)
	if ok {
		t.local.Set(ctx, key, b)
	}
	return b, ok
}

func (t *Tiered) Set(ctx context.Context, key string, payload []byte) {
	t.local.Set(ctx, key, payload)
	t.shared.Set(ctx, key, payload)
}

func (t *Tiered) Delete(ctx context.Context, key string) {
	t.local.Delete(ctx, key)
	t.shared.Delete(ctx, key)
}

func (t *Tiered) Len() int { return t.local.Len() }
