package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/pkg/metrics"
)

// MemStore is an in-memory Store guarded by a single RWMutex. Each adapter
// owns its own instance; stores are never shared across providers.
type MemStore struct {
	mu    sync.RWMutex
	games map[string]*model.Game

	provider              string
	metricsUpdateInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemStore creates a store and starts its metrics updater, which stops on
// ctx cancellation or Close.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		games:                 make(map[string]*model.Game),
		provider:              "unknown",
		metricsUpdateInterval: 5 * time.Second,
		stop:                  make(chan struct{}),
		done:                  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background updater.
func (s *MemStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

func (s *MemStore) Upsert(_ context.Context, g model.Game) bool {
	if strings.TrimSpace(g.ID) == "" {
		metrics.RecordErrorByComponent("repository", "invalid_id")
		return false
	}
	c := g.Clone()
	s.mu.Lock()
	_, existed := s.games[g.ID]
	s.games[g.ID] = &c
	s.mu.Unlock()
	return !existed
}

func (s *MemStore) Update(_ context.Context, id string, fn func(*model.Game)) (model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return model.Game{}, ErrNotFound
	}
	fn(g)
	return g.Clone(), nil
}

func (s *MemStore) Get(_ context.Context, id string) (model.Game, error) {
	if strings.TrimSpace(id) == "" {
		return model.Game{}, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Game{}, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *MemStore) Delete(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return false
	}
	delete(s.games, id)
	return true
}

func (s *MemStore) List(_ context.Context) []model.Game {
	s.mu.RLock()
	out := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g.Clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Game) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}

// startMetricsUpdater publishes the game count on an interval.
func (s *MemStore) startMetricsUpdater(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.updateMetrics(ctx)
			}
		}
	}()
}

func (s *MemStore) updateMetrics(ctx context.Context) {
	metrics.UpdateProviderGames(s.provider, s.Count(ctx))
}
