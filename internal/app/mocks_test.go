package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/pscheid92/gigmarket/internal/broadcast"
	"github.com/pscheid92/gigmarket/internal/domain"
)

// --- Mock implementations ---

type mockUserRepo struct {
	getByIDFn func(ctx context.Context, userID int64) (*domain.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockCartRepo struct {
	listItemsFn      func(ctx context.Context, userID int64) ([]domain.CartItem, error)
	addItemFn        func(ctx context.Context, userID int64, item domain.NewCartItem) (*domain.CartItem, error)
	updateQuantityFn func(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error)
	removeItemFn     func(ctx context.Context, userID, itemID int64) error
	clearFn          func(ctx context.Context, userID int64) (int64, error)
}

func (m *mockCartRepo) ListItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if m.listItemsFn != nil {
		return m.listItemsFn(ctx, userID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockCartRepo) AddItem(ctx context.Context, userID int64, item domain.NewCartItem) (*domain.CartItem, error) {
	if m.addItemFn != nil {
		return m.addItemFn(ctx, userID, item)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockCartRepo) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	if m.updateQuantityFn != nil {
		return m.updateQuantityFn(ctx, userID, itemID, quantity)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockCartRepo) RemoveItem(ctx context.Context, userID, itemID int64) error {
	if m.removeItemFn != nil {
		return m.removeItemFn(ctx, userID, itemID)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockCartRepo) Clear(ctx context.Context, userID int64) (int64, error) {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID)
	}
	return 0, fmt.Errorf("not implemented")
}

type mockConversationRepo struct {
	isParticipantFn func(ctx context.Context, conversationID, userID int64) (bool, error)
	listMessagesFn  func(ctx context.Context, conversationID, beforeID int64, limit int) ([]domain.Message, error)
	postMessageFn   func(ctx context.Context, conversationID, senderID int64, body string) (*domain.Message, error)
	markReadFn      func(ctx context.Context, conversationID, userID, messageID int64) (*domain.ReadState, error)
}

func (m *mockConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	if m.isParticipantFn != nil {
		return m.isParticipantFn(ctx, conversationID, userID)
	}
	return false, nil
}

func (m *mockConversationRepo) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]domain.Message, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, conversationID, beforeID, limit)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConversationRepo) PostMessage(ctx context.Context, conversationID, senderID int64, body string) (*domain.Message, error) {
	if m.postMessageFn != nil {
		return m.postMessageFn(ctx, conversationID, senderID, body)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockConversationRepo) MarkRead(ctx context.Context, conversationID, userID, messageID int64) (*domain.ReadState, error) {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, conversationID, userID, messageID)
	}
	return nil, fmt.Errorf("not implemented")
}

type published struct {
	key   domain.EntityKey
	event domain.Event
}

type mockPublisher struct {
	mu     sync.Mutex
	events []published
	result broadcast.Result
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{result: broadcast.Result{Ok: true}}
}

func (m *mockPublisher) Enqueue(key domain.EntityKey, event domain.Event) broadcast.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{key: key, event: event})
	return m.result
}

func (m *mockPublisher) published() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.events...)
}

// usersWith returns a user repo where the given ids may manage carts.
func usersWith(managers ...int64) *mockUserRepo {
	return &mockUserRepo{getByIDFn: func(_ context.Context, id int64) (*domain.User, error) {
		for _, m := range managers {
			if m == id {
				return &domain.User{ID: id, CanManageCarts: true}, nil
			}
		}
		return &domain.User{ID: id}, nil
	}}
}

func participants(conversationID int64, userIDs ...int64) *mockConversationRepo {
	return &mockConversationRepo{isParticipantFn: func(_ context.Context, cid, uid int64) (bool, error) {
		if cid != conversationID {
			return false, nil
		}
		for _, id := range userIDs {
			if id == uid {
				return true, nil
			}
		}
		return false, nil
	}}
}
