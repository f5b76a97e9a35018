// Package provider defines the contract every upstream live-casino adapter
// satisfies, the shared error taxonomy, and the name-keyed factory registry.
package provider

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/domain/model"
)

// Kind is the closed set of adapter variants.
type Kind string

const (
	KindEvolution Kind = "evolution"
	KindPragmatic Kind = "pragmatic"
)

// Provider is an upstream adapter. Implementations own their game store,
// subscription set and live socket; callers only see copies.
type Provider interface {
	Name() string
	Kind() Kind

	// LoadInitialState populates games from a snapshot. Per-item conversion
	// failures are counted and skipped; only a failed fetch is returned.
	LoadInitialState(ctx context.Context) error

	// ConnectLiveStream starts the supervised live socket. Idempotent.
	ConnectLiveStream(ctx context.Context) error

	// ParseMessage handles one raw upstream frame: it updates games and
	// emits events as needed.
	ParseMessage(ctx context.Context, raw []byte) error

	// ConvertRaw maps one upstream table record onto a Game.
	ConvertRaw(id string, raw json.RawMessage) (model.Game, error)

	// FormatResult turns a forwardable event into a downstream frame.
	FormatResult(ev model.Event) model.ClientEvent

	// SupportsDirectSubscription is true when the upstream scopes its own
	// stream, so every received frame is forwarded without local filtering.
	SupportsDirectSubscription() bool

	// Subscribe and Unsubscribe change the adapter-level interest in a game.
	Subscribe(ctx context.Context, gameID string) error
	Unsubscribe(ctx context.Context, gameID string) error

	// Events is closed by Close.
	Events() <-chan model.Event

	Games(ctx context.Context) []model.Game
	Game(ctx context.Context, id string) (model.Game, error)
	// ResolveGame returns the known game or a stub named after id.
	ResolveGame(ctx context.Context, id string) model.Game

	Health() Health
	Stats() model.MessageStats

	// Close cancels every timer, waits for them and releases the socket.
	Close() error
}

// Health is a point-in-time view of an adapter, served by /health.
type Health struct {
	Provider          string                `json:"provider"`
	Kind              Kind                  `json:"kind"`
	State             model.ConnectionState `json:"state"`
	Connected         bool                  `json:"connected"`
	Configured        bool                  `json:"configured"`
	Degraded          bool                  `json:"degraded"`
	Mode              string                `json:"mode"`
	ReconnectAttempts int                   `json:"reconnectAttempts"`
	LastError         string                `json:"lastError,omitempty"`
	Games             int                   `json:"games"`
	Subscriptions     int                   `json:"subscriptions"`
	LastSnapshot      *model.BatchSummary   `json:"lastSnapshot,omitempty"`
}

// Adapter modes reported in Health.
const (
	ModeLive = "live"
	ModeDemo = "demo"
)
