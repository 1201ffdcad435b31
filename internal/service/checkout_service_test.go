package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

func (s *ServiceTestSuite) TestCheckoutOpensPaymentSession() {
	userID := uuid.New()
	product := s.fillCart(userID, 250, 2)

	result, err := s.checkout.Checkout(s.ctx, s.checkoutRequest(userID, 500))
	require.NoError(s.T(), err)
	require.Equal(s.T(), "session_"+result.OrderID.String(), result.PaymentSessionID)

	order := s.order(result.OrderID)
	require.Equal(s.T(), domain.OrderStatusPending, order.Status)
	require.Equal(s.T(), domain.PaymentStatusPending, order.PaymentStatus)
	require.Equal(s.T(), domain.PaymentMethodOnline, order.PaymentMethod)
	require.Equal(s.T(), result.PaymentSessionID, order.PaymentSessionID)
	require.True(s.T(), decimal.NewFromInt(500).Equal(order.TotalAmount))

	items, err := s.store.Orders().GetOrderItems(s.ctx, order.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), items, 1)
	require.Equal(s.T(), product.ID, items[0].ProductID)
	require.Equal(s.T(), 2, items[0].Quantity)
	require.True(s.T(), product.Price.Equal(items[0].PriceAtPurchase))

	require.Empty(s.T(), s.cartItems(userID))

	sessions := s.gateway.Sessions()
	require.Len(s.T(), sessions, 1)
	require.Equal(s.T(), "https://shop.example/orders/"+order.ID.String(), sessions[0].ReturnURL)
	require.Equal(s.T(), "INR", sessions[0].Currency)
	require.Zero(s.T(), s.notifier.confirmations(order.ID), "online orders are confirmed by the webhook")
}

func (s *ServiceTestSuite) TestCheckoutPricesFromCartSnapshot() {
	userID := uuid.New()
	product := s.fillCart(userID, 120, 1)

	// a later catalog price change must not reach the order
	product.Price = decimal.NewFromInt(999)
	s.store.AddProduct(product)

	result, err := s.checkout.Checkout(s.ctx, s.checkoutRequest(userID, 120))
	require.NoError(s.T(), err)

	items, err := s.store.Orders().GetOrderItems(s.ctx, result.OrderID)
	require.NoError(s.T(), err)
	require.True(s.T(), decimal.NewFromInt(120).Equal(items[0].PriceAtPurchase))
}

func (s *ServiceTestSuite) TestCheckoutEmptyCart() {
	userID := uuid.New()
	require.NoError(s.T(), s.store.Carts().CreateCart(s.ctx, domain.NewCart(userID, s.now)))

	_, err := s.checkout.Checkout(s.ctx, s.checkoutRequest(userID, 100))
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	require.EqualError(s.T(), err, "cart is empty")

	orders, err := s.orders.ListOrdersForUser(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Empty(s.T(), orders)
	require.Empty(s.T(), s.gateway.Sessions())
}

func (s *ServiceTestSuite) TestCheckoutMissingCart() {
	_, err := s.checkout.Checkout(s.ctx, s.checkoutRequest(uuid.New(), 100))
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *ServiceTestSuite) TestCheckoutValidatesRequest() {
	userID := uuid.New()
	s.fillCart(userID, 100, 1)

	tests := map[string]func(r *CheckoutRequest){
		"missing user":   func(r *CheckoutRequest) { r.UserID = uuid.Nil },
		"zero amount":    func(r *CheckoutRequest) { r.Amount = decimal.Zero },
		"missing name":   func(r *CheckoutRequest) { r.CustomerName = " " },
		"missing email":  func(r *CheckoutRequest) { r.CustomerEmail = "" },
		"invalid email":  func(r *CheckoutRequest) { r.CustomerEmail = "not-an-address" },
		"unknown method": func(r *CheckoutRequest) { r.PaymentMethod = "barter" },
	}

	for name, mutate := range tests {
		s.Run(name, func() {
			req := s.checkoutRequest(userID, 100)
			mutate(&req)
			_, err := s.checkout.Checkout(s.ctx, req)
			require.True(s.T(), errors.Is(err, domain.ErrValidation))
		})
	}
	require.Len(s.T(), s.cartItems(userID), 1, "a rejected request leaves the cart alone")
}

func (s *ServiceTestSuite) TestCheckoutAppliesCoupon() {
	_, err := s.orders.CreateCoupon(s.ctx, CreateCouponRequest{
		Code:          "save50",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: decimal.NewFromInt(50),
	})
	require.NoError(s.T(), err)

	userID := uuid.New()
	s.fillCart(userID, 500, 1)
	req := s.checkoutRequest(userID, 450)
	req.CouponCode = "Save50"

	result, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err)

	order := s.order(result.OrderID)
	require.Equal(s.T(), "SAVE50", order.CouponCode)
	require.True(s.T(), decimal.NewFromInt(50).Equal(order.DiscountAmount))

	coupon, err := s.store.Coupons().GetCouponByCode(s.ctx, "SAVE50")
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, coupon.UsedCount)
}

func (s *ServiceTestSuite) TestCheckoutRejectsUnknownCouponAndKeepsCart() {
	userID := uuid.New()
	s.fillCart(userID, 300, 1)
	req := s.checkoutRequest(userID, 300)
	req.CouponCode = "NOPE"

	_, err := s.checkout.Checkout(s.ctx, req)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	require.Len(s.T(), s.cartItems(userID), 1)
}

func (s *ServiceTestSuite) TestCheckoutCompensatesGatewayFailure() {
	_, err := s.orders.CreateCoupon(s.ctx, CreateCouponRequest{
		Code:          "ONCE",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		UsageLimit:    1,
	})
	require.NoError(s.T(), err)

	userID := uuid.New()
	product := s.fillCart(userID, 200, 3)
	s.gateway.FailSessions(errors.New("connection refused"))

	req := s.checkoutRequest(userID, 540)
	req.CouponCode = "ONCE"
	_, err = s.checkout.Checkout(s.ctx, req)
	require.True(s.T(), errors.Is(err, domain.ErrUpstream))

	orders, err := s.orders.ListOrdersForUser(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 1)
	require.Equal(s.T(), domain.OrderStatusCancelled, orders[0].Status)
	require.Equal(s.T(), domain.PaymentStatusFailed, orders[0].PaymentStatus)
	require.Equal(s.T(), SessionFailureReason, orders[0].CancellationReason)

	items := s.cartItems(userID)
	require.Len(s.T(), items, 1)
	require.Equal(s.T(), product.ID, items[0].ProductID)
	require.Equal(s.T(), 3, items[0].Quantity)

	coupon, err := s.store.Coupons().GetCouponByCode(s.ctx, "ONCE")
	require.NoError(s.T(), err)
	require.Zero(s.T(), coupon.UsedCount, "the coupon use is released")

	s.gateway.FailSessions(nil)
	result, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err, "the customer can retry with the restored cart")
	require.NotEmpty(s.T(), result.PaymentSessionID)
}

func (s *ServiceTestSuite) TestCheckoutCashOnDelivery() {
	userID := uuid.New()
	s.fillCart(userID, 800, 1)
	req := s.checkoutRequest(userID, 800)
	req.PaymentMethod = "cod"

	result, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err)
	require.Empty(s.T(), result.PaymentSessionID)

	order := s.order(result.OrderID)
	require.Equal(s.T(), domain.PaymentMethodCOD, order.PaymentMethod)
	require.Equal(s.T(), domain.OrderStatusProcessing, order.Status)
	require.Equal(s.T(), domain.PaymentStatusPending, order.PaymentStatus)
	require.Equal(s.T(), 1, s.notifier.confirmations(order.ID))
	require.Empty(s.T(), s.gateway.Sessions())
}

func (s *ServiceTestSuite) TestCheckoutCashOnDeliveryIsAtomic() {
	_, err := s.orders.CreateCoupon(s.ctx, CreateCouponRequest{
		Code:          "COD10",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
	})
	require.NoError(s.T(), err)

	userID := uuid.New()
	product := s.fillCart(userID, 600, 2)
	req := s.checkoutRequest(userID, 1080)
	req.PaymentMethod = "cod"
	req.CouponCode = "COD10"

	// coupon redeem, order, items and cart clear go through; the move to
	// processing does not.
	s.store.FailWritesAfter(4, errors.New("connection reset"))
	_, err = s.checkout.Checkout(s.ctx, req)
	require.True(s.T(), errors.Is(err, domain.ErrPersistence))
	s.store.FailWrites(nil)

	orders, err := s.orders.ListOrdersForUser(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Empty(s.T(), orders, "no pending COD order is left behind")

	items := s.cartItems(userID)
	require.Len(s.T(), items, 1)
	require.Equal(s.T(), product.ID, items[0].ProductID)
	require.Equal(s.T(), 2, items[0].Quantity)

	coupon, err := s.store.Coupons().GetCouponByCode(s.ctx, "COD10")
	require.NoError(s.T(), err)
	require.Zero(s.T(), coupon.UsedCount)
	require.Empty(s.T(), s.notifier.confirmed)

	result, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.OrderStatusProcessing, s.order(result.OrderID).Status)
}

func (s *ServiceTestSuite) TestCheckoutCashOnDeliverySurvivesNotifierFailure() {
	s.notifier.failWith(errors.New("broker unreachable"))
	userID := uuid.New()
	s.fillCart(userID, 250, 1)
	req := s.checkoutRequest(userID, 250)
	req.PaymentMethod = "cod"

	result, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err)

	require.Equal(s.T(), domain.OrderStatusProcessing, s.order(result.OrderID).Status)
	require.Equal(s.T(), 1, s.notifier.confirmations(result.OrderID))
	require.Empty(s.T(), s.cartItems(userID))
}

func (s *ServiceTestSuite) TestCheckoutReplaysIdempotencyKey() {
	userID := uuid.New()
	s.fillCart(userID, 150, 1)
	req := s.checkoutRequest(userID, 150)
	req.IdempotencyKey = "retry-1"

	first, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err)

	second, err := s.checkout.Checkout(s.ctx, req)
	require.NoError(s.T(), err, "the emptied cart is not consulted on replay")
	require.Equal(s.T(), first, second)
	require.Len(s.T(), s.gateway.Sessions(), 1)

	orders, err := s.orders.ListOrdersForUser(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Len(s.T(), orders, 1)
}
