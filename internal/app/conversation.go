package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pscheid92/gigmarket/internal/domain"
)

const (
	maxMessageLength   = 4000
	defaultMessagePage = 50
)

func (s *Service) ListMessages(ctx context.Context, userID, conversationID, beforeID int64, limit int) ([]domain.Message, error) {
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	return s.conversations.ListMessages(ctx, conversationID, beforeID, limit)
}

func (s *Service) PostMessage(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxMessageLength)
	}
	if err := s.authorizeConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.conversations.PostMessage(ctx, conversationID, userID, body)
	if err != nil {
		return nil, err
	}
	s.publish(domain.ConversationKey(conversationID), domain.MessagePosted{Message: *msg})
	return msg, nil
}

// MarkRead advances the caller's read marker and announces the caller's new
// unread count to the conversation.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID, messageID int64) (*domain.ReadState, error) {
	if messageID <= 0 {
		return nil, fmt.Errorf("%w: message id must be positive", ErrInvalidInput)
	}
	state, err := s.conversations.MarkRead(ctx, conversationID, userID, messageID)
	if err != nil {
		return nil, err
	}
	s.publish(domain.ConversationKey(conversationID), domain.ReadMarkerAdvanced{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadMessageID: state.LastReadMessageID,
		UnreadCount:       state.UnreadCount,
	})
	return state, nil
}

func (s *Service) authorizeConversation(ctx context.Context, userID, conversationID int64) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !ok {
		return domain.ErrNotParticipant
	}
	return nil
}
