package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type ProductRepo struct {
	q DBTX
}

func (r *ProductRepo) GetProductByID(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	query := `SELECT id, name, price, is_active FROM products WHERE id = $1`

	var product domain.Product
	err := r.q.QueryRowContext(ctx, query, productID).Scan(&product.ID, &product.Name, &product.Price, &product.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("product not found: %s", productID)
		}
		return nil, domain.PersistenceError("product receive error", err)
	}
	return &product, nil
}
