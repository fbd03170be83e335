package httpserver

import (
	"errors"

	"github.com/pscheid92/gigmarket/internal/app"
	"github.com/pscheid92/gigmarket/internal/domain"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
)

// mapAppError turns application and domain errors into structured HTTP errors.
func mapAppError(err error, action string) *apperrors.Error {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidEntityKey),
		errors.Is(err, domain.ErrInvalidRole):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, app.ErrNotPermitted), errors.Is(err, domain.ErrNotParticipant):
		return apperrors.ForbiddenError("not permitted")
	case errors.Is(err, domain.ErrCartItemNotFound):
		return apperrors.NotFoundError("cart item not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		return apperrors.NotFoundError("message not found")
	case errors.Is(err, domain.ErrConversationNotFound):
		return apperrors.NotFoundError("conversation not found")
	case errors.Is(err, app.ErrRealtimeDisabled):
		return apperrors.InternalError("realtime signing is not configured", err)
	default:
		return apperrors.InternalError("failed to "+action, err)
	}
}
