package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/gigmarket/internal/domain"
)

// cartItemColumns must match the Scan order in scanCartItem.
const cartItemColumns = `id, user_id, service_id, title, quantity, unit_price_cents, created_at, updated_at`

type CartRepo struct {
	pool *pgxpool.Pool
}

var _ domain.CartRepository = (*CartRepo)(nil)

func NewCartRepo(pool *pgxpool.Pool) *CartRepo {
	return &CartRepo{pool: pool}
}

func scanCartItem(row pgx.Row) (*domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.UserID, &item.ServiceID, &item.Title, &item.Quantity,
		&item.UnitPriceCents, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CartRepo) ListItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cartItemColumns+` FROM cart_items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return items, nil
}

func (r *CartRepo) AddItem(ctx context.Context, userID int64, item domain.NewCartItem) (*domain.CartItem, error) {
	added, err := scanCartItem(r.pool.QueryRow(ctx, `
		INSERT INTO cart_items (user_id, service_id, title, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+cartItemColumns,
		userID, item.ServiceID, item.Title, item.Quantity, item.UnitPriceCents))
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return added, nil
}

func (r *CartRepo) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*domain.CartItem, error) {
	updated, err := scanCartItem(r.pool.QueryRow(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+cartItemColumns,
		itemID, userID, quantity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	return updated, nil
}

func (r *CartRepo) RemoveItem(ctx context.Context, userID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// Clear removes every item and returns how many there were.
func (r *CartRepo) Clear(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return tag.RowsAffected(), nil
}
