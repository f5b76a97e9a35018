// Package pragmatic adapts a socket-only upstream. Tables are discovered from
// live frames, the upstream scopes its own stream, and a demo table set keeps
// the gateway usable when the socket is unavailable.
package pragmatic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tablewire/internal/adapters/repository"
	"github.com/okian/tablewire/internal/adapters/stream"
	"github.com/okian/tablewire/internal/adapters/supervisor"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/domain/filter"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
)

// Name is the registry key of this adapter.
const Name = "pragmatic"

const defaultEventBuffer = 1024

func init() {
	provider.Register(Name, func(cfg *config.Config, log logger.Logger) (provider.Provider, error) {
		return New(cfg.Pragmatic, WithLogger(log), WithEventBuffer(cfg.EventBufferSize)), nil
	})
}

// Adapter implements provider.Provider for the Pragmatic live feed.
type Adapter struct {
	name string
	cfg  config.PragmaticConfig
	log  logger.Logger

	store   *repository.MemStore
	subs    *filter.Set
	stats   model.StatsCounter
	tracker *stream.Tracker
	sup     *supervisor.Supervisor

	events      chan model.Event
	eventBuffer int
	emitMu      sync.RWMutex
	emitDone    bool

	lifecycle context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	demo    bool
	conn    *stream.Conn
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.eventBuffer = n
		}
	}
}

// New builds an adapter. Without a URL it runs on demo tables only.
func New(cfg config.PragmaticConfig, opts ...Option) *Adapter {
	a := &Adapter{
		name:        Name,
		cfg:         cfg,
		log:         logger.Nop(),
		subs:        filter.NewSet(),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named(a.name)
	a.lifecycle, a.cancel = context.WithCancel(context.Background())
	a.events = make(chan model.Event, a.eventBuffer)
	a.store = repository.NewMemStore(a.lifecycle, repository.WithProvider(a.name))
	a.tracker = stream.NewTracker(a.name)
	a.sup = supervisor.New(a.name, a.tracker,
		supervisor.WithBackOff(supervisor.Exponential(cfg.ReconnectInitial, cfg.ReconnectMax)),
		supervisor.WithMaxAttempts(cfg.MaxReconnectAttempts),
		supervisor.WithLogger(a.log),
	)
	return a
}

func (a *Adapter) Name() string                     { return a.name }
func (a *Adapter) Kind() provider.Kind              { return provider.KindPragmatic }
func (a *Adapter) SupportsDirectSubscription() bool { return true }
func (a *Adapter) Events() <-chan model.Event       { return a.events }
func (a *Adapter) Stats() model.MessageStats        { return a.stats.Snapshot() }

func (a *Adapter) configErr() error {
	if a.cfg.URL == "" {
		return fmt.Errorf("%w: pragmatic url is not set", provider.ErrConfig)
	}
	return nil
}

// LoadInitialState has no snapshot to fetch. Without a URL it loads the demo
// tables.
func (a *Adapter) LoadInitialState(ctx context.Context) error {
	if err := a.configErr(); err != nil {
		a.enterDemo(ctx, err)
	}
	return nil
}

// FormatResult implements provider.Provider.
func (a *Adapter) FormatResult(ev model.Event) model.ClientEvent {
	return model.ClientEvent{
		Type:      model.TypeGameUpdate,
		Provider:  a.name,
		GameID:    ev.GameID,
		Data:      ev.Payload,
		Timestamp: model.Timestamp(ev.ReceivedAt),
	}
}

// ConnectLiveStream starts the supervised socket. Later calls are no-ops.
func (a *Adapter) ConnectLiveStream(ctx context.Context) error {
	if err := a.configErr(); err != nil {
		a.enterDemo(ctx, err)
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%w: adapter closed", provider.ErrNotConnected)
	}
	if a.started {
		return nil
	}
	a.started = true

	a.log.Info(ctx, "starting live stream", logger.String("url", a.cfg.URL))
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.sup.Run(a.lifecycle, a.session)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error(a.lifecycle, "live stream stopped", logger.Error(err))
			a.enterDemo(a.lifecycle, err)
		}
	}()
	return nil
}

// session runs one connection. The subscribe_all delay and the ping ticker
// are scoped to it and stopped before the socket is closed.
func (a *Adapter) session(ctx context.Context, connected func()) error {
	conn, err := stream.Dial(ctx, a.cfg.URL, stream.DialOptions{})
	if err != nil {
		a.enterDemo(ctx, err)
		return fmt.Errorf("%w: %v", provider.ErrConnection, err)
	}
	connected()
	a.leaveDemo(ctx)

	connCtx, stopTimers := context.WithCancel(ctx)
	var timers sync.WaitGroup
	defer func() {
		stopTimers()
		timers.Wait()
		a.setConn(nil)
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(authFrame{Type: "auth", CasinoID: a.cfg.CasinoID}); err != nil {
		return fmt.Errorf("%w: auth: %v", provider.ErrConnection, err)
	}
	a.setConn(conn)
	a.log.Info(ctx, "live stream connected")

	timers.Add(2)
	go func() {
		defer timers.Done()
		a.subscribeAllAfter(connCtx, conn)
	}()
	go func() {
		defer timers.Done()
		a.keepalive(connCtx, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-conn.Frames():
			if !ok {
				cerr := conn.Err()
				if stream.IsNormalClosure(cerr) {
					return nil
				}
				return fmt.Errorf("%w: %v", provider.ErrConnection, cerr)
			}
			if err := a.ParseMessage(ctx, data); err != nil {
				a.log.Warn(ctx, "dropping live frame", logger.Error(err))
			}
		}
	}
}

// subscribeAllAfter sends subscribe_all after the configured delay, then
// restores per-table subscriptions held before a reconnect.
func (a *Adapter) subscribeAllAfter(ctx context.Context, conn *stream.Conn) {
	t := time.NewTimer(a.cfg.SubscribeDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	if err := conn.WriteJSON(controlFrame{Type: "subscribe_all"}); err != nil {
		a.log.Warn(ctx, "subscribe_all failed", logger.Error(err))
		return
	}
	for _, id := range a.subs.IDs() {
		if err := conn.WriteJSON(controlFrame{Type: "subscribe", TableID: id}); err != nil {
			a.log.Warn(ctx, "resubscribe failed", logger.String("tableId", id), logger.Error(err))
			return
		}
	}
}

func (a *Adapter) keepalive(ctx context.Context, conn *stream.Conn) {
	if a.cfg.PingInterval <= 0 {
		return
	}
	t := time.NewTicker(a.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteJSON(controlFrame{Type: "ping"}); err != nil {
				a.log.Debug(ctx, "ping failed", logger.Error(err))
				return
			}
		}
	}
}

func (a *Adapter) setConn(c *stream.Conn) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
}

func (a *Adapter) currentConn() *stream.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// Subscribe asks the upstream for one table. Offline, the request is kept and
// replayed after the next subscribe_all.
func (a *Adapter) Subscribe(ctx context.Context, gameID string) error {
	a.subs.Add(gameID)
	conn := a.currentConn()
	if conn == nil {
		a.log.Debug(ctx, "subscribe queued until connected", logger.String("tableId", gameID))
		return nil
	}
	if err := conn.WriteJSON(controlFrame{Type: "subscribe", TableID: gameID}); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", provider.ErrNotConnected, gameID, err)
	}
	return nil
}

// Unsubscribe drops a table from the upstream scope.
func (a *Adapter) Unsubscribe(ctx context.Context, gameID string) error {
	if !a.subs.Remove(gameID) {
		return nil
	}
	conn := a.currentConn()
	if conn == nil {
		return nil
	}
	if err := conn.WriteJSON(controlFrame{Type: "unsubscribe", TableID: gameID}); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %v", provider.ErrNotConnected, gameID, err)
	}
	return nil
}

func (a *Adapter) Games(ctx context.Context) []model.Game { return a.store.List(ctx) }

func (a *Adapter) Game(ctx context.Context, id string) (model.Game, error) {
	g, err := a.store.Get(ctx, id)
	if err != nil {
		return model.Game{}, fmt.Errorf("%w: %s/%s", provider.ErrGameNotFound, a.name, id)
	}
	return g, nil
}

func (a *Adapter) ResolveGame(ctx context.Context, id string) model.Game {
	if g, err := a.store.Get(ctx, id); err == nil {
		return g
	}
	return model.Stub(a.name, id)
}

// Health implements provider.Provider. Demo mode is always degraded.
func (a *Adapter) Health() provider.Health {
	st := a.tracker.Status()
	a.mu.Lock()
	started, demo := a.started, a.demo
	a.mu.Unlock()

	h := provider.Health{
		Provider:          a.name,
		Kind:              provider.KindPragmatic,
		State:             st.State,
		Connected:         st.State == model.StateConnected,
		Configured:        a.configErr() == nil,
		Mode:              provider.ModeLive,
		ReconnectAttempts: st.ReconnectAttempts,
		LastError:         st.LastError,
		Games:             a.store.Count(context.Background()),
		Subscriptions:     a.subs.Len(),
	}
	if demo {
		h.Mode = provider.ModeDemo
		h.Degraded = true
	}
	if err := a.configErr(); err != nil {
		h.Degraded = true
		h.LastError = err.Error()
	}
	if started && st.State == model.StateDisconnected {
		h.Degraded = true
	}
	return h
}

func (a *Adapter) emit(ctx context.Context, ev model.Event) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()
	if a.emitDone {
		return
	}
	select {
	case a.events <- ev:
	case <-ctx.Done():
	case <-a.lifecycle.Done():
	}
}

// Close stops the session and its timers, then closes Events.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()

	a.emitMu.Lock()
	a.emitDone = true
	close(a.events)
	a.emitMu.Unlock()

	return a.store.Close()
}
