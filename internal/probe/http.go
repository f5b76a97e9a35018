package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

type healthResponse struct {
	Status string `json:"status"`
}

type providerResponse struct {
	Name                       string `json:"name"`
	SupportsDirectSubscription bool   `json:"supportsDirectSubscription"`
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return resp.StatusCode, nil
}

func checkHealth(ctx context.Context, client *http.Client, base string) (string, error) {
	var h healthResponse
	status, err := getJSON(ctx, client, base+"/api/health", &h)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return h.Status, nil
}

func lookupProvider(ctx context.Context, client *http.Client, base, name string) (providerResponse, error) {
	var p providerResponse
	status, err := getJSON(ctx, client, base+"/api/providers/"+url.PathEscape(name), &p)
	if err != nil {
		return p, err
	}
	if status == http.StatusNotFound {
		return p, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if status != http.StatusOK {
		return p, fmt.Errorf("%w: provider lookup status %d", ErrProtocol, status)
	}
	return p, nil
}

// socketURL maps the gateway base URL onto its /ws endpoint.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
