package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/identity"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

func (s *ServiceTestSuite) TestGetOrderVisibility() {
	owner := uuid.New()
	order := s.placeOrder(owner, 250, "", "")

	details, err := s.orders.GetOrder(s.ctx, order.ID, &identity.Identity{UserID: owner, Role: identity.RoleCustomer})
	require.NoError(s.T(), err)
	require.Len(s.T(), details.Items, 1)
	require.Empty(s.T(), details.RefundStatus)

	_, err = s.orders.GetOrder(s.ctx, order.ID, &identity.Identity{UserID: uuid.New(), Role: identity.RoleAdmin})
	require.NoError(s.T(), err)

	_, err = s.orders.GetOrder(s.ctx, order.ID, &identity.Identity{UserID: uuid.New(), Role: identity.RoleCustomer})
	require.True(s.T(), errors.Is(err, domain.ErrForbidden))

	_, err = s.cancellations.Cancel(s.ctx, order.ID, owner, "")
	require.NoError(s.T(), err)
	details, err = s.orders.GetOrder(s.ctx, order.ID, &identity.Identity{UserID: owner})
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RefundNotRequired, details.RefundStatus)
}

func (s *ServiceTestSuite) TestAdvanceStatusFollowsFulfilment() {
	order := s.paidOrder(uuid.New(), 300, "")

	shipped, err := s.orders.AdvanceStatus(s.ctx, order.ID, domain.OrderStatusShipped)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusShipped, shipped.Status)

	delivered, err := s.orders.AdvanceStatus(s.ctx, order.ID, domain.OrderStatusDelivered)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusDelivered, delivered.Status)
	require.NotNil(s.T(), delivered.DeliveredAt)

	_, err = s.orders.AdvanceStatus(s.ctx, order.ID, domain.OrderStatusShipped)
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
}

func (s *ServiceTestSuite) TestAdvanceStatusRefusals() {
	pending := s.placeOrder(uuid.New(), 300, "", "")

	_, err := s.orders.AdvanceStatus(s.ctx, pending.ID, domain.OrderStatusShipped)
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState), "unpaid orders do not ship")

	_, err = s.orders.AdvanceStatus(s.ctx, pending.ID, domain.OrderStatusCancelled)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	_, err = s.orders.AdvanceStatus(s.ctx, uuid.New(), domain.OrderStatusShipped)
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *ServiceTestSuite) TestDeliveringCashOnDeliverySettlesPaymentAndAccrues() {
	affiliate := s.registerAffiliate("CODPAL", 10)
	order := s.placeOrder(uuid.New(), 600, "cod", "codpal")
	require.Empty(s.T(), s.ledger(affiliate.ID).Entries, "nothing accrues before the cash is collected")

	_, err := s.orders.AdvanceStatus(s.ctx, order.ID, domain.OrderStatusShipped)
	require.NoError(s.T(), err)
	delivered, err := s.orders.AdvanceStatus(s.ctx, order.ID, domain.OrderStatusDelivered)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, delivered.PaymentStatus)

	ledger := s.ledger(affiliate.ID)
	require.Len(s.T(), ledger.Entries, 1)
	require.Equal(s.T(), "60.00", ledger.Entries[0].Amount.StringFixed(2))
	require.Equal(s.T(), "60.00", ledger.Summary.Held.StringFixed(2))
}

func (s *ServiceTestSuite) TestMarkRefunded() {
	affiliate := s.registerAffiliate("REFUNDME", 5)
	order := s.paidOrder(uuid.New(), 2000, "REFUNDME")

	refunded, err := s.orders.MarkRefunded(s.ctx, order.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.PaymentStatusRefunded, refunded.PaymentStatus)
	require.Equal(s.T(), "100.00", s.ledger(affiliate.ID).Summary.Reversed.StringFixed(2))

	_, err = s.orders.MarkRefunded(s.ctx, order.ID)
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
	require.Contains(s.T(), err.Error(), "refunded")

	unpaid := s.placeOrder(uuid.New(), 100, "", "")
	_, err = s.orders.MarkRefunded(s.ctx, unpaid.ID)
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
}

func (s *ServiceTestSuite) TestListOrdersFiltersByStatus() {
	s.placeOrder(uuid.New(), 100, "", "")
	s.paidOrder(uuid.New(), 100, "")
	s.advance(time.Second)
	s.paidOrder(uuid.New(), 100, "")

	processing, err := s.orders.ListOrders(s.ctx, repository.OrderFilter{Status: domain.OrderStatusProcessing})
	require.NoError(s.T(), err)
	require.Len(s.T(), processing, 2)
	require.True(s.T(), processing[0].CreatedAt.After(processing[1].CreatedAt), "newest first")

	page, err := s.orders.ListOrders(s.ctx, repository.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(s.T(), err)
	require.Len(s.T(), page, 1)
}

func (s *ServiceTestSuite) TestCouponAdministration() {
	coupon, err := s.orders.CreateCoupon(s.ctx, CreateCouponRequest{
		Code:              "festive",
		DiscountType:      domain.DiscountPercentage,
		DiscountValue:     decimal.NewFromInt(15),
		MinPurchaseAmount: decimal.NewFromInt(200),
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "FESTIVE", coupon.Code)

	_, err = s.orders.CreateCoupon(s.ctx, CreateCouponRequest{Code: "FESTIVE", DiscountType: domain.DiscountFixed, DiscountValue: decimal.NewFromInt(1)})
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	disabled, err := s.orders.SetCouponActive(s.ctx, "festive", false)
	require.NoError(s.T(), err)
	require.False(s.T(), disabled.IsActive)

	userID := uuid.New()
	s.fillCart(userID, 500, 1)
	req := s.checkoutRequest(userID, 425)
	req.CouponCode = "FESTIVE"
	_, err = s.checkout.Checkout(s.ctx, req)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	coupons, err := s.orders.ListCoupons(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), coupons, 1)

	_, err = s.orders.SetCouponActive(s.ctx, "MISSING", true)
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}
