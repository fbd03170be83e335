// Package errors carries typed API errors from the application layer to the
// HTTP error middleware.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorType is the category reported to clients and used as the metrics label.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeUnauthorized ErrorType = "unauthorized"
	TypeForbidden    ErrorType = "forbidden"
	TypeNotFound     ErrorType = "not_found"
	TypeConflict     ErrorType = "conflict"
	TypeRateLimited  ErrorType = "rate_limited"
	TypeInternal     ErrorType = "internal"
	TypeExternal     ErrorType = "external" // a remote dependency failed
	TypeUnavailable  ErrorType = "unavailable"
)

type typeInfo struct {
	status int
	level  slog.Level
}

// Client mistakes log at info, refusals at warn, server faults at error.
var types = map[ErrorType]typeInfo{
	TypeValidation:   {http.StatusBadRequest, slog.LevelInfo},
	TypeUnauthorized: {http.StatusUnauthorized, slog.LevelInfo},
	TypeForbidden:    {http.StatusForbidden, slog.LevelWarn},
	TypeNotFound:     {http.StatusNotFound, slog.LevelInfo},
	TypeConflict:     {http.StatusConflict, slog.LevelWarn},
	TypeRateLimited:  {http.StatusTooManyRequests, slog.LevelInfo},
	TypeInternal:     {http.StatusInternalServerError, slog.LevelError},
	TypeExternal:     {http.StatusBadGateway, slog.LevelError},
	TypeUnavailable:  {http.StatusServiceUnavailable, slog.LevelError},
}

// Error is a typed error with a client-safe message. Cause is logged but
// never sent to the client.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the type to a status code. Unknown types are 500.
func (e *Error) HTTPStatus() int {
	if info, ok := types[e.Type]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// LogLevel is the level the error middleware logs this error at.
func (e *Error) LogLevel() slog.Level {
	if info, ok := types[e.Type]; ok {
		return info.level
	}
	return slog.LevelError
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: map[string]any{}}
}

func ValidationError(message string) *Error   { return newError(TypeValidation, message, nil) }
func UnauthorizedError(message string) *Error { return newError(TypeUnauthorized, message, nil) }
func ForbiddenError(message string) *Error    { return newError(TypeForbidden, message, nil) }
func NotFoundError(message string) *Error     { return newError(TypeNotFound, message, nil) }
func ConflictError(message string) *Error     { return newError(TypeConflict, message, nil) }
func RateLimitedError(message string) *Error  { return newError(TypeRateLimited, message, nil) }

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// ExternalError reports a failed call to another service, such as a remote
// coordinator host.
func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// UnavailableError reports a subsystem that is disabled or unreachable,
// such as realtime without secrets.
func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// WithContext adds a field to the client response and the log line.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithField(key string, value any) *Error {
	return e.WithContext(key, value)
}

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type, Context: e.Context}
}

// AsStructuredError finds an *Error in err's chain or wraps err as internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return InternalError("internal server error", err)
}
