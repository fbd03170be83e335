package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/gigmarket/internal/domain"
)

const maxMessagePage = 200

type ConversationRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// Create opens a conversation between the given users.
func (r *ConversationRepo) Create(ctx context.Context, subject string, participantIDs ...int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO conversations (subject) VALUES ($1) RETURNING id`, subject).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	batch := &pgx.Batch{}
	for _, userID := range participantIDs {
		batch.Queue(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, id, userID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to add participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2
		)`, conversationID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return ok, nil
}

// ListMessages returns up to limit messages older than beforeID (all when
// beforeID is zero), oldest first.
func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > maxMessagePage {
		limit = maxMessagePage
	}
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, u.display_name, m.body, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1 AND ($2::bigint = 0 OR m.id < $2)
		ORDER BY m.id DESC
		LIMIT $3`, conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *ConversationRepo) PostMessage(ctx context.Context, conversationID, senderID int64, body string) (*domain.Message, error) {
	var m domain.Message
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (conversation_id, sender_id, body)
			VALUES ($1, $2, $3)
			RETURNING id, conversation_id, sender_id, body, created_at
		)
		SELECT i.id, i.conversation_id, i.sender_id, u.display_name, i.body, i.created_at
		FROM inserted i JOIN users u ON u.id = i.sender_id`,
		conversationID, senderID, body).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}
	return &m, nil
}

// MarkRead advances the reader's marker to messageID. The marker never moves
// backwards. The unread count covers later messages from other senders.
func (r *ConversationRepo) MarkRead(ctx context.Context, conversationID, userID, messageID int64) (*domain.ReadState, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1 AND conversation_id = $2)`,
		messageID, conversationID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}
	if !exists {
		return nil, domain.ErrMessageNotFound
	}

	var state domain.ReadState
	err = tx.QueryRow(ctx, `
		UPDATE conversation_participants
		SET last_read_message_id = GREATEST(last_read_message_id, $3)
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING last_read_message_id`,
		conversationID, userID, messageID).Scan(&state.LastReadMessageID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotParticipant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance read marker: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND id > $2 AND sender_id <> $3`,
		conversationID, state.LastReadMessageID, userID).Scan(&state.UnreadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &state, nil
}
