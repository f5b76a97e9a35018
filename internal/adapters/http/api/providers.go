package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
)

type providerSummary struct {
	Name                       string          `json:"name"`
	Kind                       provider.Kind   `json:"kind"`
	SupportsDirectSubscription bool            `json:"supportsDirectSubscription"`
	Health                     provider.Health `json:"health"`
}

type providerDetail struct {
	providerSummary
	Stats model.MessageStats `json:"stats"`
}

type gamesResponse struct {
	Provider string       `json:"provider"`
	Count    int          `json:"count"`
	Games    []model.Game `json:"games"`
}

// ProvidersHandler serves provider and game discovery.
type ProvidersHandler struct {
	deps Dependencies
}

// NewProvidersHandler creates a new providers handler.
func NewProvidersHandler(deps Dependencies) *ProvidersHandler {
	return &ProvidersHandler{deps: deps}
}

func summarize(p provider.Provider) providerSummary {
	return providerSummary{
		Name:                       p.Name(),
		Kind:                       p.Kind(),
		SupportsDirectSubscription: p.SupportsDirectSubscription(),
		Health:                     p.Health(),
	}
}

// HandleList handles GET /api/providers.
func (h *ProvidersHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	out := []providerSummary{}
	for _, p := range h.deps.Providers() {
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /api/providers/{name}.
func (h *ProvidersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, providerDetail{providerSummary: summarize(p), Stats: p.Stats()})
}

// HandleGames handles GET /api/providers/{name}/games.
func (h *ProvidersHandler) HandleGames(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	games := p.Games(r.Context())
	if games == nil {
		games = []model.Game{}
	}
	writeJSON(w, http.StatusOK, gamesResponse{Provider: p.Name(), Count: len(games), Games: games})
}

// HandleGame handles GET /api/providers/{name}/games/{id}.
func (h *ProvidersHandler) HandleGame(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	g, err := p.Game(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, provider.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game_not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *ProvidersHandler) lookup(w http.ResponseWriter, r *http.Request) (provider.Provider, bool) {
	name := r.PathValue("name")
	p, ok := h.deps.Provider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "provider_not_found", fmt.Errorf("%w: provider %q", ErrNotFound, name))
		return nil, false
	}
	return p, true
}
