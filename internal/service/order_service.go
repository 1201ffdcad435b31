package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/identity"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type OrderDetails struct {
	*domain.Order
	Items        []domain.OrderItem  `json:"items"`
	RefundStatus domain.RefundStatus `json:"refund_status,omitempty"`
}

type CreateCouponRequest struct {
	Code              string
	DiscountType      domain.DiscountType
	DiscountValue     decimal.Decimal
	MinPurchaseAmount decimal.Decimal
	UsageLimit        int
}

// OrderService serves order reads and the admin side of fulfilment,
// refunds and coupons.
type OrderService struct {
	store      repository.Store
	affiliates *AffiliateService
	now        Clock
	logger     zerolog.Logger
}

func NewOrderService(store repository.Store, affiliates *AffiliateService, clock Clock, logger zerolog.Logger) *OrderService {
	return &OrderService{
		store:      store,
		affiliates: affiliates,
		now:        orDefault(clock),
		logger:     logger.With().Str("component", "orders").Logger(),
	}
}

// GetOrder returns an order to its owner or to an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID, caller *identity.Identity) (*OrderDetails, error) {
	order, err := s.store.Orders().GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !order.IsOwnedBy(caller.UserID) {
		return nil, domain.ForbiddenError("you are not allowed to view this order")
	}
	items, err := s.store.Orders().GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	details := &OrderDetails{Order: order, Items: items}
	if order.Status == domain.OrderStatusCancelled {
		details.RefundStatus = order.RefundClassification()
	}
	return details, nil
}

func (s *OrderService) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return s.store.Orders().GetOrdersByUserID(ctx, userID)
}

func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	return s.store.Orders().ListOrders(ctx, filter)
}

// AdvanceStatus moves an order along fulfilment. Delivering a COD order
// settles its payment and accrues the affiliate commission.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	log := s.logger.With().Str("order_id", orderID.String()).Str("next_status", string(next)).Logger()

	if next != domain.OrderStatusShipped && next != domain.OrderStatusDelivered {
		return nil, domain.ValidationError("status can only be advanced to %s or %s", domain.OrderStatusShipped, domain.OrderStatusDelivered)
	}

	var updated *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return domain.InvalidTransitionError(order.Status, "moved to "+string(next))
		}

		now := s.now()
		applied, err := tx.Orders().AdvanceStatus(ctx, orderID, order.Status, next, now)
		if err != nil {
			return err
		}
		if !applied {
			current, err := tx.Orders().GetOrderByID(ctx, orderID)
			if err != nil {
				return err
			}
			return domain.InvalidTransitionError(current.Status, "moved to "+string(next))
		}

		if next == domain.OrderStatusDelivered && order.IsCOD() {
			if _, err := tx.Orders().UpdatePaymentStatus(ctx, orderID, domain.PaymentStatusPending, domain.PaymentStatusSucceeded, now); err != nil {
				return err
			}
		}

		updated, err = tx.Orders().GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if next == domain.OrderStatusDelivered && updated.IsCOD() {
			return s.affiliates.AccrueForOrder(ctx, tx, updated)
		}
		return nil
	})
	if err != nil {
		logFailure(log, err, "order status not advanced")
		return nil, err
	}

	log.Info().Str("payment_status", string(updated.PaymentStatus)).Msg("order status advanced")
	return updated, nil
}

// MarkRefunded records a refund an admin executed at the gateway and
// reverses the order's commission.
func (s *OrderService) MarkRefunded(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	log := s.logger.With().Str("order_id", orderID.String()).Logger()

	var refunded *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().GetOrderByID(ctx, orderID); err != nil {
			return err
		}
		applied, err := tx.Orders().UpdatePaymentStatus(ctx, orderID, domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, s.now())
		if err != nil {
			return err
		}
		refunded, err = tx.Orders().GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !applied {
			return domain.InvalidPaymentStateError(refunded.PaymentStatus, "refunded")
		}
		return s.affiliates.ReverseForOrder(ctx, tx, orderID)
	})
	if err != nil {
		logFailure(log, err, "refund not recorded")
		return nil, err
	}

	log.Info().Msg("refund recorded")
	return refunded, nil
}

func (s *OrderService) CreateCoupon(ctx context.Context, req CreateCouponRequest) (*domain.Coupon, error) {
	coupon, err := domain.NewCoupon(req.Code, req.DiscountType, req.DiscountValue, req.MinPurchaseAmount, req.UsageLimit, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Coupons().CreateCoupon(ctx, coupon); err != nil {
		logFailure(s.logger, err, "coupon creation failed")
		return nil, err
	}
	s.logger.Info().Str("coupon_code", coupon.Code).Msg("coupon created")
	return coupon, nil
}

func (s *OrderService) ListCoupons(ctx context.Context) ([]*domain.Coupon, error) {
	return s.store.Coupons().ListCoupons(ctx)
}

func (s *OrderService) SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error) {
	if err := s.store.Coupons().SetCouponActive(ctx, code, active); err != nil {
		return nil, err
	}
	return s.store.Coupons().GetCouponByCode(ctx, code)
}
