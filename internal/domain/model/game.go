// Package model contains domain models passed between layers.
package model

import (
	"maps"
	"time"

	"github.com/goccy/go-json"
)

// Status is the open/closed state of a table.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Game is a normalized live table. Identity is (Provider, ID).
type Game struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Provider     string          `json:"provider"`
	GameType     string          `json:"gameType"`
	Vertical     string          `json:"vertical,omitempty"`
	Status       Status          `json:"status"`
	PlayerCount  int             `json:"playerCount"`
	Language     string          `json:"language,omitempty"`
	ProviderData map[string]any  `json:"providerData,omitempty"`
	LastResults  json.RawMessage `json:"lastResults,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with g.
func (g Game) Clone() Game {
	out := g
	if g.ProviderData != nil {
		out.ProviderData = maps.Clone(g.ProviderData)
	}
	if g.LastResults != nil {
		out.LastResults = append(json.RawMessage(nil), g.LastResults...)
	}
	return out
}

// Stub returns the placeholder used when a client subscribes to a table the
// provider has not reported yet.
func Stub(provider, id string) Game {
	return Game{
		ID:       id,
		Name:     id,
		Provider: provider,
		GameType: "unknown",
		Status:   StatusOpen,
	}
}

// BatchSummary aggregates a batched snapshot conversion.
type BatchSummary struct {
	Total     int           `json:"total"`
	Converted int           `json:"converted"`
	Failed    int           `json:"failed"`
	Batches   int           `json:"batches"`
	Took      time.Duration `json:"took"`
	At        time.Time     `json:"at"`
}
