package provider

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by every adapter. Callers use errors.Is/As.
var (
	// ErrConfig marks missing credentials or endpoints; the adapter degrades.
	ErrConfig = errors.New("provider config error")
	// ErrUpstreamTimeout marks an upstream REST call that ran out of time.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamHTTP marks a non-2xx upstream REST response; see HTTPError.
	ErrUpstreamHTTP = errors.New("upstream http error")
	// ErrResponseTooLarge marks a body over the configured ceiling.
	ErrResponseTooLarge = errors.New("upstream response too large")
	// ErrMalformedMessage marks an unparsable live frame. It is dropped.
	ErrMalformedMessage = errors.New("malformed upstream message")
	// ErrConnection marks a live socket that failed to open or closed abnormally.
	ErrConnection = errors.New("upstream connection error")
	// ErrUnknownProvider is returned for names with no registered factory.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNotConnected is returned when an operation needs a live socket.
	ErrNotConnected = errors.New("provider not connected")
	// ErrGameNotFound is returned by Game for unknown ids.
	ErrGameNotFound = errors.New("game not found")
)

// HTTPError carries the upstream status of a failed REST call.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is match ErrUpstreamHTTP.
func (e *HTTPError) Unwrap() error { return ErrUpstreamHTTP }
