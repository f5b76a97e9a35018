package probe

import "errors"

// Sentinel errors reported by Run.
var (
	ErrUnhealthy       = errors.New("gateway health check failed")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoSubscription  = errors.New("no subscription acknowledged")
	ErrRouting         = errors.New("update delivered for unsubscribed game")
	ErrProtocol        = errors.New("unexpected frame")
)
