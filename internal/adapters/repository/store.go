// Package repository defines the per-provider game store and errors.
package repository

import (
	"context"

	"github.com/okian/tablewire/internal/domain/model"
)

// Store holds the games an adapter has discovered. Reads return copies.
type Store interface {
	// Upsert inserts or replaces a game. Returns true if the game was new.
	Upsert(ctx context.Context, g model.Game) bool

	// Update mutates an existing game in place under the store lock.
	// Returns the updated copy, or ErrNotFound when the id is unknown.
	Update(ctx context.Context, id string, fn func(*model.Game)) (model.Game, error)

	// Get returns a game by id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Game, error)

	// Delete removes a game. Returns false if it was absent.
	Delete(ctx context.Context, id string) bool

	// List returns all games ordered by id.
	List(ctx context.Context) []model.Game

	// Count returns the number of games.
	Count(ctx context.Context) int
}
