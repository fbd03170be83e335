package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/platform/correlation"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
)

const ctxKeyUserID = "userID"

// correlationMiddleware adopts a usable incoming correlation header or
// generates an ID, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders structured errors as JSON. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)
			if m != nil {
				m.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if userID := c.Get(ctxKeyUserID); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}

	if err.Cause != nil && err.LogLevel() >= slog.LevelError {
		attrs = append(attrs, "cause", err.Cause)
	}
	slog.Log(c.Request().Context(), err.LogLevel(), "Request failed", attrs...)
}

// requireAuth resolves the session user. API callers get 401 JSON instead of a redirect.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("authentication required")
		}

		userID, ok := session.Values[sessionKeyUserID].(int64)
		if !ok || userID <= 0 {
			return apperrors.UnauthorizedError("authentication required")
		}

		// The session may outlive the account.
		if _, err := s.app.GetUser(c.Request().Context(), userID); err != nil {
			slog.WarnContext(c.Request().Context(), "Session references unknown user, invalidating", "user_id", userID, "error", err)
			session.Options.MaxAge = -1
			_ = session.Save(c.Request(), c.Response().Writer)
			return apperrors.UnauthorizedError("authentication required")
		}

		c.Set(ctxKeyUserID, userID)
		return next(c)
	}
}

func sessionUserID(c echo.Context) (int64, error) {
	userID, ok := c.Get(ctxKeyUserID).(int64)
	if !ok {
		return 0, apperrors.InternalError("invalid user ID in context", nil)
	}
	return userID, nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid "+name).WithField(name, raw)
	}
	return id, nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func noContent(c echo.Context) error {
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	return nil
}
