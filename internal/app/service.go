package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pscheid92/gigmarket/internal/broadcast"
	"github.com/pscheid92/gigmarket/internal/capability"
	"github.com/pscheid92/gigmarket/internal/domain"
	"golang.org/x/sync/singleflight"
)

const DefaultTokenTTL = 30 * time.Second

type TokenIssuer interface {
	Issue(subjectUserID int64, entityID string, role domain.Role, ttl time.Duration) (string, capability.Claims, error)
}

type Publisher interface {
	Enqueue(key domain.EntityKey, event domain.Event) broadcast.Result
}

// Service is the application layer. It is the only component that
// references repositories, the token issuer and the broadcaster together.
type Service struct {
	users         domain.UserRepository
	carts         domain.CartRepository
	conversations domain.ConversationRepository
	issuer        TokenIssuer
	publisher     Publisher
	tokenTTL      time.Duration
	permissions   singleflight.Group
}

// NewService creates the application service. issuer may be nil when no
// signing secret is configured; token requests then fail with ErrRealtimeDisabled.
func NewService(users domain.UserRepository, carts domain.CartRepository, conversations domain.ConversationRepository,
	issuer TokenIssuer, publisher Publisher, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		users:         users,
		carts:         carts,
		conversations: conversations,
		issuer:        issuer,
		publisher:     publisher,
		tokenTTL:      tokenTTL,
	}
}

// canManageCarts collapses concurrent permission lookups for the same user.
func (s *Service) canManageCarts(ctx context.Context, userID int64) (bool, error) {
	v, err, _ := s.permissions.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return false, err
		}
		return user.CanManageCarts, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to load permissions: %w", err)
	}
	return v.(bool), nil
}

// publish announces a committed change. Failures are logged and never
// change the outcome of the mutation.
func (s *Service) publish(key domain.EntityKey, event domain.Event) {
	res := s.publisher.Enqueue(key, event)
	if !res.Ok {
		slog.Warn("Realtime broadcast not queued",
			"entity_key", key.String(), "event_type", string(event.Type()), "reason", string(res.Reason))
	}
}

// GetUser loads the session's user.
func (s *Service) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}
