package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrInvalidEntityKey     = errors.New("invalid entity key")
	ErrInvalidRole          = errors.New("invalid role")
	ErrUnknownEventType     = errors.New("unknown event type")
)
