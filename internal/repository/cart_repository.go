package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type CartRepo struct {
	q    DBTX
	lock bool
}

func (r *CartRepo) GetCartByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`
	if r.lock {
		// serialises concurrent checkouts of the same cart
		query += ` FOR UPDATE`
	}

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("cart not found")
		}
		return nil, domain.PersistenceError("cart receive error", err)
	}

	items, err := r.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (r *CartRepo) CreateCart(ctx context.Context, cart *domain.Cart) error {
	query := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.q.ExecContext(ctx, query, cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt); err != nil {
		return domain.PersistenceError("cart creation error", err)
	}
	return nil
}

func (r *CartRepo) GetCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, price_at_add
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, domain.PersistenceError("cart items retrieval error", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.PriceAtAdd); err != nil {
			return nil, domain.PersistenceError("cart item scan error", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertCartItem adds to the quantity of an existing line for the same
// product and keeps its original price.
func (r *CartRepo) UpsertCartItem(ctx context.Context, item domain.CartItem) error {
	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, price_at_add)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`
	if _, err := r.q.ExecContext(ctx, query, item.ID, item.CartID, item.ProductID, item.Quantity, item.PriceAtAdd); err != nil {
		return domain.PersistenceError("cart item upsert error", err)
	}
	return nil
}

func (r *CartRepo) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return domain.PersistenceError("cart clear error", err)
	}
	return nil
}
