package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type OrderRepo struct {
	q DBTX
}

const orderColumns = `
	id, user_id, total_amount, discount_amount, shipping_amount, tax_amount,
	coupon_code, status, payment_status, payment_method, shipping_address,
	customer_name, customer_email, customer_phone, cancellation_reason,
	payment_session_id, paid_at, delivered_at, created_at, updated_at`

func (r *OrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("shipping address serialization error: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = r.q.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.DiscountAmount,
		order.ShippingAmount,
		order.TaxAmount,
		nullString(order.CouponCode),
		order.Status,
		order.PaymentStatus,
		order.PaymentMethod,
		addressJSON,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		nullString(order.CancellationReason),
		nullString(order.PaymentSessionID),
		order.PaidAt,
		order.DeliveredAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return domain.PersistenceError("order creation error", err)
	}
	return nil
}

func (r *OrderRepo) AddOrderItems(ctx context.Context, items []domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, item := range items {
		if _, err := r.q.ExecContext(ctx, query,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtPurchase,
		); err != nil {
			return domain.PersistenceError("order item creation error", err)
		}
	}
	return nil
}

func (r *OrderRepo) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("order not found: %s", orderID)
		}
		return nil, domain.PersistenceError("order receive error", err)
	}
	return order, nil
}

func (r *OrderRepo) GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, price_at_purchase
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, domain.PersistenceError("order items retrieval error", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return nil, domain.PersistenceError("order item scan error", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OrderRepo) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, userID)
}

func (r *OrderRepo) ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	if filter.Status != "" {
		query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		return r.queryOrders(ctx, query, filter.Status, limit, offset)
	}
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.queryOrders(ctx, query, limit, offset)
}

func (r *OrderRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = 'pending' AND payment_status = 'pending'
		  AND payment_method = 'online' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	return r.queryOrders(ctx, query, createdBefore, limit)
}

func (r *OrderRepo) SetPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string, now time.Time) error {
	query := `UPDATE orders SET payment_session_id = $2, updated_at = $3 WHERE id = $1`

	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, sessionID, now))
	if err != nil {
		return domain.PersistenceError("payment session update error", err)
	}
	if !changed {
		return domain.NotFoundError("order not found: %s", orderID)
	}
	return nil
}

// ConfirmPayment moves a pending order to processing. Duplicate deliveries
// find the row already succeeded and change nothing.
func (r *OrderRepo) ConfirmPayment(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'processing', payment_status = 'succeeded', paid_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND payment_status <> 'succeeded' AND payment_status <> 'paid'
	`
	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, now))
	if err != nil {
		return false, domain.PersistenceError("payment confirmation error", err)
	}
	return changed, nil
}

func (r *OrderRepo) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, now time.Time) (bool, error) {
	fromValues := []string{string(from)}
	if from == domain.PaymentStatusSucceeded {
		fromValues = append(fromValues, "paid")
	}

	query := `
		UPDATE orders
		SET payment_status = $3,
		    paid_at = CASE WHEN $3 = 'succeeded' THEN COALESCE(paid_at, $4) ELSE paid_at END,
		    updated_at = $4
		WHERE id = $1 AND payment_status = ANY($2)
	`
	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, pq.Array(fromValues), to, now))
	if err != nil {
		return false, domain.PersistenceError("payment status update error", err)
	}
	return changed, nil
}

// CancelOrder is the atomic guard against a concurrent webhook or shipment.
func (r *OrderRepo) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'cancelled', cancellation_reason = $2, updated_at = $3
		WHERE id = $1 AND status <> ALL($4)
	`
	blocked := make([]string, 0, 3)
	for _, s := range domain.NonCancellableStatuses() {
		blocked = append(blocked, string(s))
	}

	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, reason, now, pq.Array(blocked)))
	if err != nil {
		return false, domain.PersistenceError("order cancellation error", err)
	}
	return changed, nil
}

func (r *OrderRepo) FailCheckout(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'cancelled', payment_status = 'failed', cancellation_reason = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND payment_status IN ('pending', 'failed')
	`
	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, reason, now))
	if err != nil {
		return false, domain.PersistenceError("checkout abandon error", err)
	}
	return changed, nil
}

func (r *OrderRepo) AdvanceStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, now time.Time) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, domain.InvalidTransitionError(from, "moved to "+string(to))
	}

	query := `
		UPDATE orders
		SET status = $3,
		    delivered_at = CASE WHEN $3 = 'delivered' THEN $4 ELSE delivered_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
	`
	changed, err := rowsChanged(r.q.ExecContext(ctx, query, orderID, from, to, now))
	if err != nil {
		return false, domain.PersistenceError("order status update error", err)
	}
	return changed, nil
}

func (r *OrderRepo) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError("orders retrieval error", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.PersistenceError("order scan error", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder resolves nullable and loosely typed columns once, here.
func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                                domain.Order
		couponCode, reason, sessionID        sql.NullString
		status, paymentStatus, paymentMethod string
		addressJSON                          []byte
		paidAt, deliveredAt                  sql.NullTime
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.DiscountAmount,
		&order.ShippingAmount,
		&order.TaxAmount,
		&couponCode,
		&status,
		&paymentStatus,
		&paymentMethod,
		&addressJSON,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&reason,
		&sessionID,
		&paidAt,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if order.Status, err = domain.ParseOrderStatus(status); err != nil {
		return nil, err
	}
	if order.PaymentStatus, err = domain.ParsePaymentStatus(paymentStatus); err != nil {
		return nil, err
	}
	if order.PaymentMethod, err = domain.ParsePaymentMethod(paymentMethod); err != nil {
		return nil, err
	}
	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("shipping address deserialization error: %w", err)
		}
	}

	order.CouponCode = couponCode.String
	order.CancellationReason = reason.String
	order.PaymentSessionID = sessionID.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	return &order, nil
}
