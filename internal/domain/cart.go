package domain

import (
	"context"
	"time"
)

type CartItem struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	ServiceID      int64     `json:"serviceId"`
	Title          string    `json:"title"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type NewCartItem struct {
	ServiceID      int64
	Title          string
	Quantity       int
	UnitPriceCents int64
}

type CartRepository interface {
	ListItems(ctx context.Context, userID int64) ([]CartItem, error)
	AddItem(ctx context.Context, userID int64, item NewCartItem) (*CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
	Clear(ctx context.Context, userID int64) (int64, error)
}
