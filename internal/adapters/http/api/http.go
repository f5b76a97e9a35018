// Package api serves the discovery, health and proxy HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the gateway service.
type Dependencies interface {
	// Providers returns every adapter, sorted by name.
	Providers() []provider.Provider
	Provider(name string) (provider.Provider, bool)

	Clients() int
	Subscriptions() int
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server wires HTTP routes for the gateway API.
type Server struct {
	healthHandler    *HealthHandler
	providersHandler *ProvidersHandler
	proxyHandler     *ProxyHandler
	statsHandler     *StatsHandler
	metricsHandler   http.Handler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, stats StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:    NewHealthHandler(deps),
		providersHandler: NewProvidersHandler(deps),
		proxyHandler:     NewProxyHandler(deps, log.Named("proxy")),
		statsHandler:     NewStatsHandler(stats),
		metricsHandler:   NewMetricsHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("GET /metrics", s.metricsHandler)

	mux.HandleFunc("GET /api/providers", MetricsMiddleware(s.providersHandler.HandleList, "providers"))
	mux.HandleFunc("GET /api/providers/{name}", MetricsMiddleware(s.providersHandler.HandleGet, "provider"))
	mux.HandleFunc("GET /api/providers/{name}/games", MetricsMiddleware(s.providersHandler.HandleGames, "games"))
	mux.HandleFunc("GET /api/providers/{name}/games/{id}", MetricsMiddleware(s.providersHandler.HandleGame, "game"))

	mux.HandleFunc("/api/evolution/{path...}", MetricsMiddleware(s.proxyHandler.HandleProxy, "evolution_proxy"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
