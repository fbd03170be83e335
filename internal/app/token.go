package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/gigmarket/internal/domain"
)

type RealtimeToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueRealtimeToken grants userID a short-lived token for entityID in role.
// Owners may watch their own cart, agents any cart when they manage carts, and
// participants the conversations they belong to.
func (s *Service) IssueRealtimeToken(ctx context.Context, userID int64, entityID, rawRole string) (*RealtimeToken, error) {
	if s.issuer == nil {
		return nil, ErrRealtimeDisabled
	}

	key, err := domain.ParseEntityKey(entityID)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeRealtime(ctx, userID, key, role); err != nil {
		return nil, err
	}

	token, claims, err := s.issuer.Issue(userID, key.String(), role, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &RealtimeToken{Token: token, ExpiresAt: claims.Expiry()}, nil
}

func (s *Service) authorizeRealtime(ctx context.Context, userID int64, key domain.EntityKey, role domain.Role) error {
	switch role {
	case domain.RoleOwner:
		if key.Kind == domain.KindCart && key.ID == userID {
			return nil
		}
	case domain.RoleAgent:
		if key.Kind != domain.KindCart {
			break
		}
		ok, err := s.canManageCarts(ctx, userID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	case domain.RoleParticipant:
		if key.Kind != domain.KindConversation {
			break
		}
		ok, err := s.conversations.IsParticipant(ctx, key.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s as %s", ErrNotPermitted, key, role)
}
