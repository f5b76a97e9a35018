package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/internal/provider/evolution"
	"github.com/okian/tablewire/pkg/logger"
)

const maxProxyBody = 1 << 20

type evolutionClient interface {
	Client() (*evolution.Client, error)
}

// ProxyHandler forwards /api/evolution/* through the Evolution REST client,
// so callers get its auth, rate limit, cache and response ceiling.
type ProxyHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(deps Dependencies, log logger.Logger) *ProxyHandler {
	return &ProxyHandler{deps: deps, log: log}
}

// HandleProxy handles ALL /api/evolution/{path...}.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	client, err := h.client()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "evolution_unavailable", err)
		return
	}

	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrRequestTooLarge)
			return
		}
	}

	resp, err := client.Proxy(r.Context(), r.Method, "/"+r.PathValue("path"), r.URL.Query(), body, r.Header.Get("Content-Type"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if resp.Cached {
		w.Header().Set("X-Cache", "HIT")
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *ProxyHandler) client() (*evolution.Client, error) {
	p, ok := h.deps.Provider(evolution.Name)
	if !ok {
		return nil, fmt.Errorf("%w: evolution adapter is not enabled", ErrUnavailable)
	}
	ec, ok := p.(evolutionClient)
	if !ok {
		return nil, fmt.Errorf("%w: evolution adapter has no REST client", ErrUnavailable)
	}
	return ec.Client()
}

func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var he *provider.HTTPError
	switch {
	case errors.As(err, &he):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(he.StatusCode)
		_, _ = w.Write(he.Body)
	case errors.Is(err, provider.ErrUpstreamTimeout):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", err)
	case errors.Is(err, provider.ErrResponseTooLarge):
		writeError(w, http.StatusBadGateway, "upstream_too_large", err)
	case errors.Is(err, provider.ErrConfig):
		writeError(w, http.StatusServiceUnavailable, "evolution_unavailable", err)
	default:
		h.log.Warn(r.Context(), "proxy call failed", logger.String("path", r.URL.Path), logger.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_error", err)
	}
}
