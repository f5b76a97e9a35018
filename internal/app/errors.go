package service

import "errors"

// Sentinel kinds for gateway errors.
var (
	ErrUnknownClient = errors.New("unknown client")
	ErrBadCommand    = errors.New("bad command")
	ErrClientExists  = errors.New("client already connected")
)
