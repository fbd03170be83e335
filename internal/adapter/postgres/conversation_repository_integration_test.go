package postgres

import (
	"context"
	"testing"

	"github.com/pscheid92/gigmarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepo_Participants(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewConversationRepo(pool)
	ctx := context.Background()
	buyer := createTestUser(t, pool, "buyer", false)
	seller := createTestUser(t, pool, "seller", false)
	outsider := createTestUser(t, pool, "outsider", false)

	id, err := repo.Create(ctx, "Logo brief", buyer.ID, seller.ID)
	require.NoError(t, err)

	ok, err := repo.IsParticipant(ctx, id, seller.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsParticipant(ctx, id, outsider.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversationRepo_MessagesAndPaging(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewConversationRepo(pool)
	ctx := context.Background()
	buyer := createTestUser(t, pool, "buyer", false)
	seller := createTestUser(t, pool, "seller", false)
	id, err := repo.Create(ctx, "", buyer.ID, seller.ID)
	require.NoError(t, err)

	var posted []*domain.Message
	for _, body := range []string{"hi", "hello", "when can you start?"} {
		m, err := repo.PostMessage(ctx, id, buyer.ID, body)
		require.NoError(t, err)
		posted = append(posted, m)
	}
	assert.Equal(t, "buyer", posted[0].SenderName)

	all, err := repo.ListMessages(ctx, id, 0, 50)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hi", all[0].Body)
	assert.Equal(t, "when can you start?", all[2].Body)

	older, err := repo.ListMessages(ctx, id, posted[2].ID, 1)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, posted[1].ID, older[0].ID)
}

func TestConversationRepo_MarkRead(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewConversationRepo(pool)
	ctx := context.Background()
	buyer := createTestUser(t, pool, "buyer", false)
	seller := createTestUser(t, pool, "seller", false)
	outsider := createTestUser(t, pool, "outsider", false)
	id, err := repo.Create(ctx, "", buyer.ID, seller.ID)
	require.NoError(t, err)

	first, err := repo.PostMessage(ctx, id, buyer.ID, "one")
	require.NoError(t, err)
	_, err = repo.PostMessage(ctx, id, buyer.ID, "two")
	require.NoError(t, err)
	third, err := repo.PostMessage(ctx, id, buyer.ID, "three")
	require.NoError(t, err)
	_, err = repo.PostMessage(ctx, id, seller.ID, "mine")
	require.NoError(t, err)

	state, err := repo.MarkRead(ctx, id, seller.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, state.LastReadMessageID)
	assert.Equal(t, 2, state.UnreadCount, "own messages are never unread")

	state, err = repo.MarkRead(ctx, id, seller.ID, third.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, state.UnreadCount)

	state, err = repo.MarkRead(ctx, id, seller.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, state.LastReadMessageID, "marker does not move backwards")

	_, err = repo.MarkRead(ctx, id, outsider.ID, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = repo.MarkRead(ctx, id, seller.ID, third.ID+100)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}
