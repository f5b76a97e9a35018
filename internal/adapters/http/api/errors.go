package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("upstream unavailable")
	ErrRequestTooLarge = errors.New("request body too large")
)
