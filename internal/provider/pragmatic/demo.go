package pragmatic

import (
	"context"
	"time"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

var demoTables = []struct {
	id, name, gameType string
	players            int
}{
	{"pp-demo-roulette", "Mega Roulette", "roulette", 412},
	{"pp-demo-baccarat", "Speed Baccarat 1", "baccarat", 87},
	{"pp-demo-blackjack", "Blackjack Azure", "blackjack", 7},
	{"pp-demo-sicbo", "Mega Sic Bo", "sicbo", 153},
}

func demoGames(provider string) []model.Game {
	now := time.Now().UTC()
	out := make([]model.Game, 0, len(demoTables))
	for _, t := range demoTables {
		out = append(out, model.Game{
			ID:           t.id,
			Name:         t.name,
			Provider:     provider,
			GameType:     t.gameType,
			Vertical:     "live",
			Status:       model.StatusOpen,
			PlayerCount:  t.players,
			Language:     defaultLanguage,
			ProviderData: map[string]any{"demo": true},
			UpdatedAt:    now,
		})
	}
	return out
}

// enterDemo loads the demo set once; the adapter then reports mode demo.
func (a *Adapter) enterDemo(ctx context.Context, reason error) {
	a.mu.Lock()
	if a.demo {
		a.mu.Unlock()
		return
	}
	a.demo = true
	a.mu.Unlock()

	for _, g := range demoGames(a.name) {
		a.store.Upsert(ctx, g)
	}
	metrics.UpdateProviderGames(a.name, a.store.Count(ctx))
	a.log.Warn(ctx, "live stream unavailable, serving demo tables",
		logger.Int("games", len(demoTables)),
		logger.Error(reason),
	)
}

// leaveDemo drops the demo set once a live connection is up.
func (a *Adapter) leaveDemo(ctx context.Context) {
	a.mu.Lock()
	if !a.demo {
		a.mu.Unlock()
		return
	}
	a.demo = false
	a.mu.Unlock()

	for _, t := range demoTables {
		a.store.Delete(ctx, t.id)
	}
	a.log.Info(ctx, "live stream up, demo tables removed")
}

func (a *Adapter) inDemo() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.demo
}
