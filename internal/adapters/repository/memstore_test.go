package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tablewire/internal/domain/model"
)

func TestMemStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(ctx, WithProvider("evolution"))
	defer func() { _ = store.Close() }()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	created := store.Upsert(ctx, model.Game{ID: "t1", Name: "Lightning Roulette", Provider: "evolution", Status: model.StatusOpen})
	if !created {
		t.Error("expected first upsert to create")
	}
	if store.Upsert(ctx, model.Game{ID: "t1", Name: "Lightning Roulette", Provider: "evolution"}) {
		t.Error("expected second upsert to replace")
	}

	g, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name != "Lightning Roulette" {
		t.Errorf("expected name Lightning Roulette, got %q", g.Name)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, " "); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if store.Upsert(ctx, model.Game{}) {
		t.Error("expected empty id to be rejected")
	}

	if !store.Delete(ctx, "t1") {
		t.Error("expected delete to report presence")
	}
	if store.Delete(ctx, "t1") {
		t.Error("expected second delete to report absence")
	}
}

func TestMemStore_UpdateInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(ctx)
	defer func() { _ = store.Close() }()

	store.Upsert(ctx, model.Game{ID: "t1", Status: model.StatusOpen, PlayerCount: 3})

	g, err := store.Update(ctx, "t1", func(g *model.Game) {
		g.Status = model.StatusClosed
		g.PlayerCount = 0
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Status != model.StatusClosed || g.PlayerCount != 0 {
		t.Errorf("unexpected returned game %+v", g)
	}

	stored, _ := store.Get(ctx, "t1")
	if stored.Status != model.StatusClosed {
		t.Errorf("expected stored status closed, got %s", stored.Status)
	}

	if _, err := store.Update(ctx, "nope", func(*model.Game) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_CopiesAreDetached(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(ctx)
	defer func() { _ = store.Close() }()

	in := model.Game{ID: "t1", ProviderData: map[string]any{"seats": 7}}
	store.Upsert(ctx, in)
	in.ProviderData["seats"] = 1

	out, _ := store.Get(ctx, "t1")
	if out.ProviderData["seats"] != 7 {
		t.Errorf("store shares map with caller: %v", out.ProviderData["seats"])
	}
	out.ProviderData["seats"] = 2
	again, _ := store.Get(ctx, "t1")
	if again.ProviderData["seats"] != 7 {
		t.Errorf("returned copy shares map with store: %v", again.ProviderData["seats"])
	}
}

func TestMemStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(ctx)
	defer func() { _ = store.Close() }()

	for _, id := range []string{"c", "a", "b"} {
		store.Upsert(ctx, model.Game{ID: id})
	}
	list := store.List(ctx)
	if len(list) != 3 {
		t.Fatalf("expected 3 games, got %d", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
}

func TestMemStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore(ctx, WithMetricsUpdateInterval(time.Millisecond))
	defer func() { _ = store.Close() }()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("t%d", i%20)
				store.Upsert(ctx, model.Game{ID: id})
				_, _ = store.Update(ctx, id, func(g *model.Game) { g.PlayerCount++ })
				_ = store.List(ctx)
			}
		}(w)
	}
	wg.Wait()

	if count := store.Count(ctx); count != 20 {
		t.Errorf("expected 20 games, got %d", count)
	}
}

func TestMemStore_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemStore(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		_ = store.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("store did not stop after context cancellation")
	}
}
