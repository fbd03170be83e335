package app

import "errors"

var (
	// ErrNotPermitted means the caller may not act on the entity in the requested capacity.
	ErrNotPermitted = errors.New("not permitted")
	// ErrRealtimeDisabled means no signing secret is configured.
	ErrRealtimeDisabled = errors.New("realtime is not configured")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)
