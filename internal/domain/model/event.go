package model

import (
	"time"

	"github.com/goccy/go-json"
)

// Event is a normalized upstream event flowing from an adapter to the gateway.
// Relevant is the adapter's filter verdict; Forward marks events that should
// reach downstream clients at all.
type Event struct {
	Provider   string
	GameID     string
	Type       string
	Relevant   bool
	Forward    bool
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Downstream frame types.
const (
	TypeConnection            = "connection"
	TypeSubscriptionSuccess   = "subscription_success"
	TypeUnsubscriptionSuccess = "unsubscription_success"
	TypeGameUpdate            = "game_update"
	TypeError                 = "error"
)

// Client command types.
const (
	CommandSubscribe   = "subscribe_game"
	CommandUnsubscribe = "unsubscribe_game"
)

// ClientEvent is a frame written to a downstream client.
type ClientEvent struct {
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Providers []string        `json:"providers,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	GameID    string          `json:"gameId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Command is a frame read from a downstream client.
type Command struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	GameID   string `json:"gameId"`
}

// Timestamp formats t the way every downstream frame carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
