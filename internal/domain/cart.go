package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID         uuid.UUID       `json:"id"`
	CartID     uuid.UUID       `json:"cart_id"`
	ProductID  uuid.UUID       `json:"product_id"`
	Quantity   int             `json:"quantity"`
	PriceAtAdd decimal.Decimal `json:"price_at_add"`
}

type Product struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

func NewCart(userID uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func Subtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.PriceAtAdd.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CartItemsFromOrder rebuilds cart lines from an order that never reached
// the gateway.
func CartItemsFromOrder(cartID uuid.UUID, items []OrderItem) []CartItem {
	out := make([]CartItem, len(items))
	for i, item := range items {
		out[i] = CartItem{
			ID:         uuid.New(),
			CartID:     cartID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceAtAdd: item.PriceAtPurchase,
		}
	}
	return out
}
