package evolution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/tablewire/internal/adapters/cache"
	"github.com/okian/tablewire/internal/adapters/ratelimit"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/internal/provider"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"
)

// Request outcomes recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeCacheHit = "cache_hit"
	outcomeTimeout  = "timeout"
	outcomeHTTP     = "http_error"
	outcomeTooLarge = "too_large"
	outcomeError    = "error"
)

// Response is a completed upstream REST call.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Cached      bool
}

// Client calls the lobby REST API with basic auth, spacing calls through a
// rate limiter and caching GET responses.
type Client struct {
	name     string
	baseURL  *url.URL
	cfg      config.EvolutionConfig
	http     *http.Client
	limiter  *ratelimit.Limiter
	cache    cache.Cache
	maxBytes int64
	log      logger.Logger
}

// NewClient builds a client for cfg. The cache may be shared with other
// clients; keys include the full path and query.
func NewClient(name string, cfg config.EvolutionConfig, c cache.Cache, log logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", provider.ErrConfig, cfg.BaseURL)
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		name:     name,
		baseURL:  base,
		cfg:      cfg,
		http:     &http.Client{},
		limiter:  ratelimit.New(cfg.MinRequestInterval),
		cache:    c,
		maxBytes: cfg.MaxResponseBytes,
		log:      log,
	}, nil
}

// StatePath returns the snapshot path with the casino id filled in.
func (c *Client) StatePath() string {
	return strings.ReplaceAll(c.cfg.StatePath, "{casinoId}", url.PathEscape(c.cfg.CasinoID))
}

// StateQuery builds the snapshot selectors.
func (c *Client) StateQuery() url.Values {
	q := url.Values{}
	if c.cfg.Vertical != "" {
		q.Set("gameVertical", c.cfg.Vertical)
	}
	if c.cfg.GameProvider != "" {
		q.Set("gameProvider", c.cfg.GameProvider)
	}
	for _, id := range c.cfg.Exclude {
		q.Add("excludeTables", id)
	}
	return q
}

// FetchState downloads the full lobby snapshot.
func (c *Client) FetchState(ctx context.Context) ([]byte, error) {
	resp, err := c.Get(ctx, c.StatePath(), c.StateQuery())
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchTable downloads the snapshot filtered to one table.
func (c *Client) FetchTable(ctx context.Context, tableID string) ([]byte, error) {
	q := c.StateQuery()
	q.Set("tableIds", tableID)
	resp, err := c.Get(ctx, c.StatePath(), q)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Get performs a cached GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, "")
}

// Do performs an upstream call. Only successful GETs are cached. Non-2xx
// responses return *provider.HTTPError carrying the upstream status and body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*Response, error) {
	key := cacheKey(path, query)
	if method == http.MethodGet {
		if b, ok := c.cache.Get(ctx, key); ok {
			metrics.RecordUpstreamRequest(c.name, outcomeCacheHit)
			return &Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: b, Cached: true}, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordUpstreamRequest(c.name, outcomeError)
		return nil, err
	}

	resp, err := c.send(ctx, method, path, query, body, contentType)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		c.cache.Set(ctx, key, resp.Body)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*Response, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		metrics.RecordUpstreamRequest(c.name, outcomeError)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	metrics.RecordUpstreamRequestDuration(c.name, float64(time.Since(start).Milliseconds()))
	if err != nil {
		if isTimeout(ctx, err) {
			metrics.RecordUpstreamRequest(c.name, outcomeTimeout)
			return nil, fmt.Errorf("%w: %s %s", provider.ErrUpstreamTimeout, method, u.Path)
		}
		metrics.RecordUpstreamRequest(c.name, outcomeError)
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer res.Body.Close()

	if c.maxBytes > 0 && res.ContentLength > c.maxBytes {
		metrics.RecordUpstreamRequest(c.name, outcomeTooLarge)
		return nil, fmt.Errorf("%w: %d bytes declared", provider.ErrResponseTooLarge, res.ContentLength)
	}
	rd = res.Body
	if c.maxBytes > 0 {
		rd = io.LimitReader(res.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		if isTimeout(ctx, err) {
			metrics.RecordUpstreamRequest(c.name, outcomeTimeout)
			return nil, fmt.Errorf("%w: reading %s", provider.ErrUpstreamTimeout, u.Path)
		}
		metrics.RecordUpstreamRequest(c.name, outcomeError)
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		metrics.RecordUpstreamRequest(c.name, outcomeTooLarge)
		return nil, fmt.Errorf("%w: over %d bytes", provider.ErrResponseTooLarge, c.maxBytes)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		metrics.RecordUpstreamRequest(c.name, outcomeHTTP)
		c.log.Warn(ctx, "upstream returned error status",
			logger.String("path", u.Path),
			logger.Int("status", res.StatusCode),
		)
		return nil, &provider.HTTPError{StatusCode: res.StatusCode, URL: u.Redacted(), Body: data}
	}

	metrics.RecordUpstreamRequest(c.name, outcomeOK)
	return &Response{StatusCode: res.StatusCode, ContentType: res.Header.Get("Content-Type"), Body: data}, nil
}

func cacheKey(path string, query url.Values) string {
	return path + "?" + query.Encode()
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Proxy forwards an arbitrary call under path. GETs go through the cache.
func (c *Client) Proxy(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (*Response, error) {
	return c.Do(ctx, method, path, query, body, contentType)
}
