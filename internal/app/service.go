// Package service wires provider adapters, dispatch workers and the fan-out
// hub into the gateway the HTTP and WebSocket layers talk to.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/tablewire/internal/adapters/mq/worker"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Service implements the gateway dependencies for the HTTP API.
type Service struct {
	mu sync.RWMutex

	cfg       *config.Config
	providers []provider.Provider
	byName    map[string]provider.Provider
	hub       *Hub
	pool      *worker.Pool

	injected  bool
	started   bool
	startedAt time.Time
	loaded    chan struct{}
	loadStop  context.CancelFunc
	loadDone  chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProviders uses the given adapters instead of building them from the
// provider registry.
func WithProviders(ps ...provider.Provider) Option {
	return func(s *Service) {
		s.providers = append(s.providers, ps...)
		s.injected = true
	}
}

// New constructs a Service. Adapters are built on Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg:    cfg,
		byName: make(map[string]provider.Provider),
		loaded: make(chan struct{}),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the enabled adapters, starts one dispatch worker per adapter
// and loads initial state for all of them concurrently in the background.
// A failing adapter is logged and left degraded.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting gateway service...")

	if !s.injected {
		for _, name := range provider.AvailableNames() {
			if !s.cfg.ProviderEnabled(name) {
				s.logger.Info(ctx, "provider disabled", logger.String("provider", name))
				continue
			}
			p, err := provider.Build(name, s.cfg, s.logger)
			if err != nil {
				s.closeProviders(ctx)
				return fmt.Errorf("build provider %s: %w", name, err)
			}
			s.providers = append(s.providers, p)
		}
	}
	slices.SortFunc(s.providers, func(a, b provider.Provider) int { return strings.Compare(a.Name(), b.Name()) })
	sources := make(map[string]worker.Source, len(s.providers))
	for _, p := range s.providers {
		if _, dup := s.byName[p.Name()]; dup {
			s.closeProviders(ctx)
			return fmt.Errorf("%w: duplicate provider %s", provider.ErrConfig, p.Name())
		}
		s.byName[p.Name()] = p
		sources[p.Name()] = p
	}

	s.hub = NewHub(s.providers,
		WithHubLogger(s.logger.Named("hub")),
		WithClientQueueSize(s.cfg.ClientQueueSize),
	)
	s.pool = worker.NewPool(s.hub, sources, s.logger.Named("dispatch"))
	s.pool.Start(ctx)

	loadCtx, cancel := context.WithCancel(ctx)
	s.loadStop = cancel
	s.loadDone = make(chan struct{})
	go s.load(loadCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "gateway service started",
		logger.Int("providers", len(s.providers)),
		logger.Int("workers", s.pool.Size()),
	)
	return nil
}

// load runs every adapter's initial load concurrently, then opens the live
// streams.
func (s *Service) load(ctx context.Context) {
	defer close(s.loadDone)
	defer close(s.loaded)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.providers {
		g.Go(func() error {
			start := time.Now()
			if err := p.LoadInitialState(gctx); err != nil {
				metrics.RecordErrorByComponent(p.Name(), "initial_load")
				s.logger.Warn(gctx, "initial load failed, provider degraded",
					logger.String("provider", p.Name()),
					logger.Error(err),
				)
				return nil
			}
			s.logger.Info(gctx, "initial load finished",
				logger.String("provider", p.Name()),
				logger.Int("games", len(p.Games(gctx))),
				logger.Duration("took", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range s.providers {
		if ctx.Err() != nil {
			return
		}
		if err := p.ConnectLiveStream(ctx); err != nil {
			level := s.logger.Warn
			if errors.Is(err, provider.ErrConfig) {
				level = s.logger.Info
			}
			level(ctx, "live stream not started", logger.String("provider", p.Name()), logger.Error(err))
		}
	}
}

// Loaded is closed once the initial loads have finished.
func (s *Service) Loaded() <-chan struct{} { return s.loaded }

// Stop closes the adapters, which ends their event streams and dispatch
// workers, then disconnects every client.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping gateway service...")

	s.loadStop()
	<-s.loadDone
	s.closeProviders(ctx)
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "dispatch shutdown incomplete", logger.Error(err))
	}
	s.hub.Close(ctx)

	s.started = false
	s.logger.Info(ctx, "gateway service stopped")
}

func (s *Service) closeProviders(ctx context.Context) {
	for _, p := range s.providers {
		if err := p.Close(); err != nil {
			s.logger.Warn(ctx, "provider close failed", logger.String("provider", p.Name()), logger.Error(err))
		}
	}
}

// Hub returns the fan-out hub. Nil before Start.
func (s *Service) Hub() *Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// Providers returns the adapters sorted by name.
func (s *Service) Providers() []provider.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.providers)
}

// Provider looks an adapter up by name.
func (s *Service) Provider(name string) (provider.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[strings.ToLower(name)]
	return p, ok
}

// Clients returns the number of connected WebSocket clients.
func (s *Service) Clients() int {
	if h := s.Hub(); h != nil {
		return h.Clients()
	}
	return 0
}

// Subscriptions returns the number of client subscriptions.
func (s *Service) Subscriptions() int {
	if h := s.Hub(); h != nil {
		return h.Subscriptions()
	}
	return 0
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	started, startedAt := s.started, s.startedAt
	providers := slices.Clone(s.providers)
	s.mu.RUnlock()

	perProvider := make(map[string]any, len(providers))
	for _, p := range providers {
		perProvider[p.Name()] = map[string]any{
			"messages": p.Stats(),
			"health":   p.Health(),
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(goroutines)
	if mem.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(mem.PauseNs[(mem.NumGC+255)%256]) / 1e6)
	}

	stats := map[string]any{
		"started":       started,
		"clients":       s.Clients(),
		"subscriptions": s.Subscriptions(),
		"providers":     perProvider,
		"goroutines":    goroutines,
		"memoryBytes":   mem.Alloc,
	}
	if started {
		stats["uptimeSeconds"] = int64(time.Since(startedAt).Seconds())
	}
	return stats
}
