package api

import (
	"net/http"
	"time"

	"github.com/okian/tablewire/internal/domain/model"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health statuses.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

type healthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Clients       int               `json:"clients"`
	Subscriptions int               `json:"subscriptions"`
	Providers     []provider.Health `json:"providers"`
}

// HealthHandler reports gateway and per-provider health.
type HealthHandler struct {
	deps Dependencies
	now  func() time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps, now: time.Now}
}

// HandleHealth always answers 200; degradation shows in the body.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        statusOK,
		Timestamp:     model.Timestamp(h.now()),
		Clients:       h.deps.Clients(),
		Subscriptions: h.deps.Subscriptions(),
		Providers:     []provider.Health{},
	}
	for _, p := range h.deps.Providers() {
		ph := p.Health()
		if ph.Degraded {
			resp.Status = statusDegraded
		}
		resp.Providers = append(resp.Providers, ph)
	}
	writeJSON(w, http.StatusOK, resp)
}

// NewMetricsHandler serves the Prometheus registry.
func NewMetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
