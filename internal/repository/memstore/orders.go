package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type orderRepo struct{ s *Store }

func (r *orderRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	data, unlock, err := r.s.write("order creation error")
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := data.orders[order.ID]; exists {
		return domain.PersistenceError("order creation error", errDuplicate)
	}
	data.orders[order.ID] = *order
	return nil
}

func (r *orderRepo) AddOrderItems(_ context.Context, items []domain.OrderItem) error {
	data, unlock, err := r.s.write("order item creation error")
	if err != nil {
		return err
	}
	defer unlock()

	for _, item := range items {
		if _, ok := data.orders[item.OrderID]; !ok {
			return domain.PersistenceError("order item creation error", errForeignKey)
		}
		data.orderItems[item.OrderID] = append(data.orderItems[item.OrderID], item)
	}
	return nil
}

func (r *orderRepo) GetOrderByID(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	data, unlock := r.s.read()
	defer unlock()

	order, ok := data.orders[orderID]
	if !ok {
		return nil, domain.NotFoundError("order not found: %s", orderID)
	}
	return &order, nil
}

func (r *orderRepo) GetOrderItems(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	data, unlock := r.s.read()
	defer unlock()

	return append([]domain.OrderItem(nil), data.orderItems[orderID]...), nil
}

func (r *orderRepo) GetOrdersByUserID(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	data, unlock := r.s.read()
	defer unlock()

	var orders []*domain.Order
	for _, order := range data.orders {
		if order.UserID == userID {
			o := order
			orders = append(orders, &o)
		}
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

func (r *orderRepo) ListOrders(_ context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	data, unlock := r.s.read()
	defer unlock()

	var orders []*domain.Order
	for _, order := range data.orders {
		if filter.Status == "" || order.Status == filter.Status {
			o := order
			orders = append(orders, &o)
		}
	}
	sortOrdersNewestFirst(orders)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(orders) {
		return nil, nil
	}
	orders = orders[offset:]
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *orderRepo) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error) {
	data, unlock := r.s.read()
	defer unlock()

	var orders []*domain.Order
	for _, order := range data.orders {
		if order.Status == domain.OrderStatusPending &&
			order.PaymentStatus == domain.PaymentStatusPending &&
			order.PaymentMethod == domain.PaymentMethodOnline &&
			order.CreatedAt.Before(createdBefore) {
			o := order
			orders = append(orders, &o)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *orderRepo) SetPaymentSession(_ context.Context, orderID uuid.UUID, sessionID string, now time.Time) error {
	data, unlock, err := r.s.write("payment session update error")
	if err != nil {
		return err
	}
	defer unlock()

	order, ok := data.orders[orderID]
	if !ok {
		return domain.NotFoundError("order not found: %s", orderID)
	}
	order.PaymentSessionID = sessionID
	order.UpdatedAt = now
	data.orders[orderID] = order
	return nil
}

func (r *orderRepo) ConfirmPayment(_ context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	return r.update("payment confirmation error", orderID, func(order *domain.Order) bool {
		if order.Status != domain.OrderStatusPending || order.PaymentStatus == domain.PaymentStatusSucceeded {
			return false
		}
		order.Status = domain.OrderStatusProcessing
		order.PaymentStatus = domain.PaymentStatusSucceeded
		order.PaidAt = &now
		order.UpdatedAt = now
		return true
	})
}

func (r *orderRepo) UpdatePaymentStatus(_ context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, now time.Time) (bool, error) {
	return r.update("payment status update error", orderID, func(order *domain.Order) bool {
		if order.PaymentStatus != from {
			return false
		}
		order.PaymentStatus = to
		if to == domain.PaymentStatusSucceeded && order.PaidAt == nil {
			order.PaidAt = &now
		}
		order.UpdatedAt = now
		return true
	})
}

func (r *orderRepo) CancelOrder(_ context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.update("order cancellation error", orderID, func(order *domain.Order) bool {
		if !order.Status.IsCancellable() {
			return false
		}
		order.Status = domain.OrderStatusCancelled
		order.CancellationReason = reason
		order.UpdatedAt = now
		return true
	})
}

func (r *orderRepo) FailCheckout(_ context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error) {
	return r.update("checkout abandon error", orderID, func(order *domain.Order) bool {
		if order.Status != domain.OrderStatusPending {
			return false
		}
		if order.PaymentStatus != domain.PaymentStatusPending && order.PaymentStatus != domain.PaymentStatusFailed {
			return false
		}
		order.Status = domain.OrderStatusCancelled
		order.PaymentStatus = domain.PaymentStatusFailed
		order.CancellationReason = reason
		order.UpdatedAt = now
		return true
	})
}

func (r *orderRepo) AdvanceStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus, now time.Time) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, domain.InvalidTransitionError(from, "moved to "+string(to))
	}
	return r.update("order status update error", orderID, func(order *domain.Order) bool {
		if order.Status != from {
			return false
		}
		order.Status = to
		if to == domain.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		order.UpdatedAt = now
		return true
	})
}

// update applies a conditional mutation. A missing order changes no rows,
// like the SQL form.
func (r *orderRepo) update(op string, orderID uuid.UUID, apply func(order *domain.Order) bool) (bool, error) {
	data, unlock, err := r.s.write(op)
	if err != nil {
		return false, err
	}
	defer unlock()

	order, ok := data.orders[orderID]
	if !ok {
		return false, nil
	}
	if !apply(&order) {
		return false, nil
	}
	data.orders[orderID] = order
	return true, nil
}
