package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/pscheid92/gigmarket/internal/domain"
)

const maxCartQuantity = 999

func (s *Service) ListCart(ctx context.Context, actorID, ownerID int64) ([]domain.CartItem, error) {
	if err := s.authorizeCart(ctx, actorID, ownerID); err != nil {
		return nil, err
	}
	return s.carts.ListItems(ctx, ownerID)
}

func (s *Service) AddCartItem(ctx context.Context, actorID, ownerID int64, item domain.NewCartItem) (*domain.CartItem, error) {
	item.Title = strings.TrimSpace(item.Title)
	switch {
	case item.ServiceID <= 0:
		return nil, fmt.Errorf("%w: service id must be positive", ErrInvalidInput)
	case item.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	case item.UnitPriceCents < 0:
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if err := validateQuantity(item.Quantity); err != nil {
		return nil, err
	}
	if err := s.authorizeCart(ctx, actorID, ownerID); err != nil {
		return nil, err
	}

	added, err := s.carts.AddItem(ctx, ownerID, item)
	if err != nil {
		return nil, err
	}
	s.publish(domain.CartKey(ownerID), domain.CartItemAdded{Item: *added})
	return added, nil
}

func (s *Service) UpdateCartItem(ctx context.Context, actorID, ownerID, itemID int64, quantity int) (*domain.CartItem, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}
	if err := s.authorizeCart(ctx, actorID, ownerID); err != nil {
		return nil, err
	}

	updated, err := s.carts.UpdateQuantity(ctx, ownerID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	s.publish(domain.CartKey(ownerID), domain.CartItemUpdated{Item: *updated})
	return updated, nil
}

func (s *Service) RemoveCartItem(ctx context.Context, actorID, ownerID, itemID int64) error {
	if err := s.authorizeCart(ctx, actorID, ownerID); err != nil {
		return err
	}
	if err := s.carts.RemoveItem(ctx, ownerID, itemID); err != nil {
		return err
	}
	s.publish(domain.CartKey(ownerID), domain.CartItemRemoved{ItemID: itemID})
	return nil
}

// ClearCart empties the cart. An already empty cart is not announced.
func (s *Service) ClearCart(ctx context.Context, actorID, ownerID int64) (int64, error) {
	if err := s.authorizeCart(ctx, actorID, ownerID); err != nil {
		return 0, err
	}
	removed, err := s.carts.Clear(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.publish(domain.CartKey(ownerID), domain.CartCleared{RemovedCount: removed})
	}
	return removed, nil
}

func (s *Service) authorizeCart(ctx context.Context, actorID, ownerID int64) error {
	if actorID == ownerID {
		return nil
	}
	ok, err := s.canManageCarts(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cart of user %d", ErrNotPermitted, ownerID)
	}
	return nil
}

func validateQuantity(q int) error {
	if q < 1 || q > maxCartQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidInput, maxCartQuantity)
	}
	return nil
}
