package domain

import (
	"context"
	"time"
)

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReadState is a participant's read marker after advancing it.
type ReadState struct {
	LastReadMessageID int64
	UnreadCount       int
}

type ConversationRepository interface {
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]Message, error)
	PostMessage(ctx context.Context, conversationID, senderID int64, body string) (*Message, error)
	MarkRead(ctx context.Context, conversationID, userID, messageID int64) (*ReadState, error)
}
