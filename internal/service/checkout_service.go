package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/cache"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/gateway"
	"github.com/wellness-storefront/order-ledger/internal/notifier"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

const SessionFailureReason = "payment session could not be created"

type CheckoutRequest struct {
	UserID          uuid.UUID
	Amount          decimal.Decimal
	CustomerPhone   string
	CustomerEmail   string
	CustomerName    string
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	IdempotencyKey  string
}

type CheckoutResult struct {
	OrderID          uuid.UUID `json:"orderId"`
	PaymentSessionID string    `json:"paymentSessionId,omitempty"`
}

type CheckoutConfig struct {
	Currency          string
	ReturnURLTemplate string
	GatewayTimeout    time.Duration
}

// CheckoutService turns a cart into a pending order and opens the payment
// session. When the gateway fails the order is compensated and the cart
// restored.
type CheckoutService struct {
	store       repository.Store
	gateway     gateway.PaymentGateway
	notifier    notifier.Notifier
	idempotency cache.IdempotencyStore
	cfg         CheckoutConfig
	now         Clock
	logger      zerolog.Logger
}

func NewCheckoutService(
	store repository.Store,
	paymentGateway gateway.PaymentGateway,
	orderNotifier notifier.Notifier,
	idempotency cache.IdempotencyStore,
	cfg CheckoutConfig,
	clock Clock,
	logger zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		store:       store,
		gateway:     paymentGateway,
		notifier:    orderNotifier,
		idempotency: idempotency,
		cfg:         cfg,
		now:         orDefault(clock),
		logger:      logger.With().Str("component", "checkout").Logger(),
	}
}

func (r *CheckoutRequest) validate() (domain.PaymentMethod, error) {
	if r.UserID == uuid.Nil {
		return "", domain.ValidationError("userId is required")
	}
	if !r.Amount.IsPositive() {
		return "", domain.ValidationError("amount must be greater than zero")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return "", domain.ValidationError("customerName is required")
	}
	if strings.TrimSpace(r.CustomerEmail) == "" {
		return "", domain.ValidationError("customerEmail is required")
	}
	if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
		return "", domain.ValidationError("customerEmail is not a valid address")
	}
	return domain.ParsePaymentMethod(r.PaymentMethod)
}

func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	method, err := req.validate()
	if err != nil {
		return nil, err
	}

	if cached := s.replay(ctx, req); cached != nil {
		return cached, nil
	}

	order := domain.NewOrder(req.UserID, req.Amount, method, s.now())
	order.CustomerName = strings.TrimSpace(req.CustomerName)
	order.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	order.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	order.ShippingAddress = req.ShippingAddress

	log := s.logger.With().
		Str("order_id", order.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("payment_method", string(method)).
		Logger()

	var items []domain.OrderItem
	var redeemed *domain.Coupon
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().GetCartByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return domain.ValidationError("cart is empty")
		}
		subtotal := domain.Subtotal(cart.Items)

		if code := domain.NormalizeCouponCode(req.CouponCode); code != "" {
			coupon, discount, err := redeemCoupon(ctx, tx, code, subtotal)
			if err != nil {
				return err
			}
			redeemed = coupon
			order.CouponCode = coupon.Code
			order.DiscountAmount = discount
		}

		if expected := subtotal.Sub(order.DiscountAmount); !expected.Equal(order.TotalAmount) {
			log.Warn().
				Str("amount", order.TotalAmount.StringFixed(2)).
				Str("expected", expected.StringFixed(2)).
				Msg("checkout amount differs from cart total")
		}

		if err := tx.Orders().CreateOrder(ctx, order); err != nil {
			return err
		}
		items = domain.ItemsFromCart(order.ID, cart.Items)
		if err := tx.Orders().AddOrderItems(ctx, items); err != nil {
			return err
		}
		if err := tx.Carts().ClearCart(ctx, cart.ID); err != nil {
			return err
		}
		if order.IsCOD() {
			return confirmCOD(ctx, tx, order, s.now())
		}
		return nil
	})
	if err != nil {
		logFailure(log, err, "checkout failed")
		return nil, err
	}

	log.Info().Str("amount", order.TotalAmount.StringFixed(2)).Msg("order created")

	var result *CheckoutResult
	if order.IsCOD() {
		result = s.notifyCOD(ctx, order, log)
	} else {
		result, err = s.openSession(ctx, order, items, redeemed, log)
	}
	if err != nil {
		return nil, err
	}

	s.remember(ctx, req, result)
	return result, nil
}

func redeemCoupon(ctx context.Context, tx repository.Store, code string, subtotal decimal.Decimal) (*domain.Coupon, decimal.Decimal, error) {
	coupon, err := tx.Coupons().GetCouponByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, decimal.Zero, domain.ValidationError("coupon %s is not valid", code)
		}
		return nil, decimal.Zero, err
	}
	if err := coupon.CheckApplicable(subtotal); err != nil {
		return nil, decimal.Zero, err
	}
	ok, err := tx.Coupons().RedeemCoupon(ctx, coupon.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !ok {
		return nil, decimal.Zero, domain.ValidationError("coupon %s has reached its usage limit", coupon.Code)
	}
	return coupon, coupon.Discount(subtotal), nil
}

// confirmCOD moves a cash-on-delivery order straight to processing in the
// checkout transaction; the payment stays pending until delivery.
func confirmCOD(ctx context.Context, tx repository.Store, order *domain.Order, now time.Time) error {
	applied, err := tx.Orders().AdvanceStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusProcessing, now)
	if err != nil {
		return err
	}
	if !applied {
		return domain.InvalidTransitionError(order.Status, "confirmed")
	}
	order.Status = domain.OrderStatusProcessing
	order.UpdatedAt = now
	return nil
}

func (s *CheckoutService) notifyCOD(ctx context.Context, order *domain.Order, log zerolog.Logger) *CheckoutResult {
	if err := s.notifier.SendOrderEmails(detach(ctx), order.ID); err != nil {
		log.Error().Err(err).Msg("order confirmation dispatch failed")
	}
	return &CheckoutResult{OrderID: order.ID}
}

func (s *CheckoutService) openSession(ctx context.Context, order *domain.Order, items []domain.OrderItem, coupon *domain.Coupon, log zerolog.Logger) (*CheckoutResult, error) {
	gwCtx, cancel := withTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateSession(gwCtx, gateway.SessionRequest{
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Currency:      s.cfg.Currency,
		CustomerID:    order.UserID,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		ReturnURL:     gateway.ReturnURL(s.cfg.ReturnURLTemplate, order.ID),
	})
	if err != nil {
		log.Error().Err(err).Msg("payment session creation failed")
		if compErr := s.compensate(detach(ctx), order, items, coupon, SessionFailureReason); compErr != nil {
			log.Error().Err(compErr).Msg("checkout compensation failed")
		}
		return nil, domain.UpstreamError(SessionFailureReason, err)
	}

	if err := s.store.Orders().SetPaymentSession(ctx, order.ID, session.SessionID, s.now()); err != nil {
		log.Error().Err(err).Str("session_id", session.SessionID).Msg("payment session could not be stored")
		return nil, err
	}

	log.Info().Str("session_id", session.SessionID).Msg("payment session created")
	return &CheckoutResult{OrderID: order.ID, PaymentSessionID: session.SessionID}, nil
}

// Abandon compensates a pending online order that will never be paid and
// hands its items back to the customer's cart.
func (s *CheckoutService) Abandon(ctx context.Context, order *domain.Order, reason string) error {
	items, err := s.store.Orders().GetOrderItems(ctx, order.ID)
	if err != nil {
		return err
	}
	var coupon *domain.Coupon
	if order.CouponCode != "" {
		coupon, err = s.store.Coupons().GetCouponByCode(ctx, order.CouponCode)
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return s.compensate(ctx, order, items, coupon, reason)
}

func (s *CheckoutService) compensate(ctx context.Context, order *domain.Order, items []domain.OrderItem, coupon *domain.Coupon, reason string) error {
	var failed bool
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		failed, err = tx.Orders().FailCheckout(ctx, order.ID, reason, s.now())
		if err != nil || !failed {
			return err
		}

		cart, err := tx.Carts().GetCartByUserID(ctx, order.UserID)
		if isNotFound(err) {
			cart = domain.NewCart(order.UserID, s.now())
			err = tx.Carts().CreateCart(ctx, cart)
		}
		if err != nil {
			return err
		}
		for _, item := range domain.CartItemsFromOrder(cart.ID, items) {
			if err := tx.Carts().UpsertCartItem(ctx, item); err != nil {
				return err
			}
		}

		if coupon != nil {
			return tx.Coupons().ReleaseCoupon(ctx, coupon.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("reason", reason).
			Int("restored_items", len(items)).
			Msg("checkout compensated")
	}
	return nil
}

func (s *CheckoutService) replay(ctx context.Context, req CheckoutRequest) *CheckoutResult {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return nil
	}
	raw, err := s.idempotency.Lookup(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil
	}
	var result CheckoutResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Warn().Err(err).Msg("idempotency entry unreadable")
		return nil
	}
	s.logger.Info().Str("order_id", result.OrderID.String()).Msg("checkout replayed from idempotency key")
	return &result
}

func (s *CheckoutService) remember(ctx context.Context, req CheckoutRequest, result *CheckoutResult) {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.idempotency.Remember(ctx, req.UserID, req.IdempotencyKey, raw); err != nil {
		s.logger.Warn().Err(err).Msg("idempotency entry not stored")
	}
}
