package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/adapters/mq/queue"
	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/domain/subscription"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

const defaultClientQueueSize = 256

// Hub owns downstream clients and routes provider events to them.
type Hub struct {
	providers map[string]provider.Provider
	names     []string
	registry  *subscription.Registry
	queueSize int
	log       logger.Logger
	now       func() time.Time

	mu      sync.RWMutex
	clients map[string]queue.Queue

	// cmdMu orders the provider side effects of subscribe, unsubscribe and
	// disconnect so first-client and last-client transitions never interleave.
	cmdMu sync.Mutex
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithClientQueueSize bounds each client's outbound queue.
func WithClientQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates a hub over a fixed provider set.
func NewHub(providers []provider.Provider, opts ...HubOption) *Hub {
	h := &Hub{
		providers: make(map[string]provider.Provider, len(providers)),
		registry:  subscription.NewRegistry(),
		queueSize: defaultClientQueueSize,
		log:       logger.Nop(),
		now:       time.Now,
		clients:   make(map[string]queue.Queue),
	}
	for _, opt := range opts {
		opt(h)
	}
	for _, p := range providers {
		h.providers[p.Name()] = p
	}
	h.names = slices.Sorted(maps.Keys(h.providers))
	return h
}

// Connect registers a client and queues the connection greeting. The
// returned queue is drained by the client's socket writer and closed by
// Disconnect.
func (h *Hub) Connect(ctx context.Context, clientID string) (queue.Queue, error) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(h.queueSize))

	h.mu.Lock()
	if _, exists := h.clients[clientID]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrClientExists, clientID)
	}
	h.clients[clientID] = q
	n := len(h.clients)
	h.mu.Unlock()

	metrics.UpdateConnectedClients(n)
	h.log.Debug(ctx, "client connected", logger.String("client", clientID), logger.Int("clients", n))

	h.send(ctx, clientID, model.ClientEvent{
		Type:      model.TypeConnection,
		Status:    "connected",
		Providers: slices.Clone(h.names),
		Timestamp: h.timestamp(),
	})
	return q, nil
}

// Disconnect drops every subscription of the client and closes its queue.
// Upstream connections stay up.
func (h *Hub) Disconnect(ctx context.Context, clientID string) {
	h.mu.Lock()
	q, ok := h.clients[clientID]
	delete(h.clients, clientID)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = q.Close()

	h.cmdMu.Lock()
	emptied := h.registry.RemoveClient(clientID)
	for _, key := range emptied {
		h.releaseUpstream(ctx, key)
	}
	h.cmdMu.Unlock()

	metrics.UpdateConnectedClients(n)
	metrics.UpdateActiveSubscriptions(h.registry.Len())
	h.log.Debug(ctx, "client disconnected",
		logger.String("client", clientID),
		logger.Int("released", len(emptied)),
	)
}

// HandleCommand decodes one client frame and runs it. Failures are reported
// to the client as error frames.
func (h *Hub) HandleCommand(ctx context.Context, clientID string, raw []byte) {
	var cmd model.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		metrics.RecordClientCommand("invalid", "error")
		h.sendError(ctx, clientID, fmt.Errorf("%w: invalid JSON", ErrBadCommand))
		return
	}

	var err error
	switch cmd.Type {
	case model.CommandSubscribe:
		err = h.Subscribe(ctx, clientID, cmd.Provider, cmd.GameID)
	case model.CommandUnsubscribe:
		err = h.Unsubscribe(ctx, clientID, cmd.Provider, cmd.GameID)
	default:
		err = fmt.Errorf("%w: unknown type %q", ErrBadCommand, cmd.Type)
	}

	result := "ok"
	if err != nil {
		result = "error"
		if !errors.Is(err, ErrUnknownClient) {
			h.sendError(ctx, clientID, err)
		}
	}
	metrics.RecordClientCommand(commandLabel(cmd.Type), result)
}

// Subscribe binds clientID to (providerName, gameID). The first client on a
// key registers upstream interest. Upstream failures are logged only: the
// client still gets subscription_success.
func (h *Hub) Subscribe(ctx context.Context, clientID, providerName, gameID string) error {
	p, key, err := h.resolve(clientID, providerName, gameID)
	if err != nil {
		return err
	}
	game := p.ResolveGame(ctx, key.GameID)

	h.cmdMu.Lock()
	if h.registry.Add(clientID, key) {
		if err := p.Subscribe(ctx, key.GameID); err != nil {
			h.log.Warn(ctx, "upstream subscribe failed",
				logger.String("provider", key.Provider),
				logger.String("gameId", key.GameID),
				logger.Error(err),
			)
		}
	}
	h.cmdMu.Unlock()

	if err := p.ConnectLiveStream(ctx); err != nil {
		h.log.Debug(ctx, "live stream unavailable", logger.String("provider", key.Provider), logger.Error(err))
	}
	metrics.UpdateActiveSubscriptions(h.registry.Len())

	data, err := json.Marshal(game)
	if err != nil {
		h.log.Warn(ctx, "encoding game snapshot failed",
			logger.String("provider", key.Provider),
			logger.String("gameId", key.GameID),
			logger.Error(err),
		)
	}
	h.send(ctx, clientID, model.ClientEvent{
		Type:      model.TypeSubscriptionSuccess,
		Provider:  key.Provider,
		GameID:    key.GameID,
		Data:      data,
		Timestamp: h.timestamp(),
	})
	return nil
}

// Unsubscribe removes the binding. The last client on a key releases
// upstream interest.
func (h *Hub) Unsubscribe(ctx context.Context, clientID, providerName, gameID string) error {
	_, key, err := h.resolve(clientID, providerName, gameID)
	if err != nil {
		return err
	}

	h.cmdMu.Lock()
	if h.registry.Remove(clientID, key) {
		h.releaseUpstream(ctx, key)
	}
	h.cmdMu.Unlock()
	metrics.UpdateActiveSubscriptions(h.registry.Len())

	h.send(ctx, clientID, model.ClientEvent{
		Type:      model.TypeUnsubscriptionSuccess,
		Provider:  key.Provider,
		GameID:    key.GameID,
		Timestamp: h.timestamp(),
	})
	return nil
}

func (h *Hub) releaseUpstream(ctx context.Context, key subscription.Key) {
	p, ok := h.providers[key.Provider]
	if !ok {
		return
	}
	if err := p.Unsubscribe(ctx, key.GameID); err != nil {
		h.log.Warn(ctx, "upstream unsubscribe failed",
			logger.String("provider", key.Provider),
			logger.String("gameId", key.GameID),
			logger.Error(err),
		)
	}
}

func (h *Hub) resolve(clientID, providerName, gameID string) (provider.Provider, subscription.Key, error) {
	if !h.hasClient(clientID) {
		return nil, subscription.Key{}, fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	gameID = strings.TrimSpace(gameID)
	if providerName == "" || gameID == "" {
		return nil, subscription.Key{}, fmt.Errorf("%w: provider and gameId are required", ErrBadCommand)
	}
	p, ok := h.providers[providerName]
	if !ok {
		return nil, subscription.Key{}, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, providerName)
	}
	return p, subscription.Key{Provider: providerName, GameID: gameID}, nil
}

// Dispatch delivers one provider event. Direct-subscription providers reach
// every client subscribed to anything on them, once each; the others reach
// only clients subscribed to the event's game, and only for relevant events.
func (h *Hub) Dispatch(ctx context.Context, ev model.Event) error {
	p, ok := h.providers[ev.Provider]
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, ev.Provider)
	}
	if !ev.Forward {
		return nil
	}

	var targets []string
	if p.SupportsDirectSubscription() {
		targets = h.registry.ProviderClients(ev.Provider)
	} else {
		if !ev.Relevant || ev.GameID == "" {
			return nil
		}
		targets = h.registry.Clients(subscription.Key{Provider: ev.Provider, GameID: ev.GameID})
	}
	if len(targets) == 0 {
		return nil
	}

	frame, err := json.Marshal(p.FormatResult(ev))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Provider, err)
	}
	for _, id := range targets {
		h.deliver(ctx, id, frame)
	}
	metrics.RecordEventForwarded(ev.Provider)
	return nil
}

func (h *Hub) send(ctx context.Context, clientID string, ev model.ClientEvent) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error(ctx, "encode client frame", logger.String("type", ev.Type), logger.Error(err))
		return
	}
	h.deliver(ctx, clientID, frame)
}

func (h *Hub) sendError(ctx context.Context, clientID string, err error) {
	h.send(ctx, clientID, model.ClientEvent{
		Type:      model.TypeError,
		Message:   err.Error(),
		Timestamp: h.timestamp(),
	})
}

// deliver never blocks. A full queue loses the frame.
func (h *Hub) deliver(ctx context.Context, clientID string, frame []byte) {
	h.mu.RLock()
	q, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := q.Enqueue(ctx, frame); err != nil && !errors.Is(err, queue.ErrClosed) {
		h.log.Debug(ctx, "frame dropped", logger.String("client", clientID), logger.Error(err))
	}
}

func (h *Hub) hasClient(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

func (h *Hub) timestamp() string { return model.Timestamp(h.now()) }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscriptions returns the number of (client, game) bindings.
func (h *Hub) Subscriptions() int { return h.registry.Len() }

// Close disconnects every client.
func (h *Hub) Close(ctx context.Context) {
	h.mu.RLock()
	ids := slices.Collect(maps.Keys(h.clients))
	h.mu.RUnlock()
	for _, id := range ids {
		h.Disconnect(ctx, id)
	}
}

func commandLabel(t string) string {
	switch t {
	case model.CommandSubscribe, model.CommandUnsubscribe:
		return t
	}
	return "unknown"
}
