package coordinator

import (
	"errors"

	"github.com/gorilla/websocket"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrExpired            = errors.New("token expired")
	ErrEntityMismatch     = errors.New("token issued for another entity")
	ErrForbidden          = errors.New("forbidden")
	ErrTooManyConnections = errors.New("too many connections")
	ErrCoordinatorStopped = errors.New("coordinator stopped")
	ErrEventNotAllowed    = errors.New("event not allowed on entity")
	ErrUnsupportedAction  = errors.New("unsupported action")
	ErrMalformedRequest   = errors.New("malformed broadcast request")

	errCommandTimeout = errors.New("command timed out")
)

// Application close codes sent to rejected or evicted sockets.
const (
	CloseEvicted            = 4000
	CloseUnauthorized       = 4001
	CloseExpired            = 4002
	CloseEntityMismatch     = 4003
	CloseTooManyConnections = 4008
)

// CloseCodeFor maps a rejection error to the close code sent to the client.
func CloseCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrExpired):
		return CloseExpired
	case errors.Is(err, ErrEntityMismatch):
		return CloseEntityMismatch
	case errors.Is(err, ErrTooManyConnections):
		return CloseTooManyConnections
	case errors.Is(err, ErrUnauthorized):
		return CloseUnauthorized
	case errors.Is(err, ErrCoordinatorStopped):
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrEntityMismatch):
		return "entity_mismatch"
	case errors.Is(err, ErrTooManyConnections):
		return "too_many_connections"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

// closeText is kept short; close frame payloads are limited to 123 bytes.
func closeText(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return ErrExpired.Error()
	case errors.Is(err, ErrEntityMismatch):
		return "entity mismatch"
	case errors.Is(err, ErrTooManyConnections):
		return ErrTooManyConnections.Error()
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	default:
		return "internal error"
	}
}
