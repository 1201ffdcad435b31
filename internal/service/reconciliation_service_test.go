package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/gateway"
)

func (s *ServiceTestSuite) TestSweepSkipsRecentOrders() {
	s.placeOrder(uuid.New(), 200, "", "")

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Zero(s.T(), report.Checked)
}

func (s *ServiceTestSuite) TestSweepConfirmsPaidOrders() {
	order := s.placeOrder(uuid.New(), 200, "", "")
	s.gateway.SetOrderStatus(order.ID, gateway.OrderPaid)
	s.advance(2 * time.Hour)

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), SweepReport{Checked: 1, Confirmed: 1}, report)

	require.Equal(s.T(), domain.PaymentStatusSucceeded, s.order(order.ID).PaymentStatus)
	require.Equal(s.T(), 1, s.notifier.confirmations(order.ID))
}

func (s *ServiceTestSuite) TestSweepAbandonsExpiredSessions() {
	userID := uuid.New()
	order := s.placeOrder(userID, 200, "", "")
	s.gateway.SetOrderStatus(order.ID, gateway.OrderExpired)
	s.advance(2 * time.Hour)

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), SweepReport{Checked: 1, Abandoned: 1}, report)

	abandoned := s.order(order.ID)
	require.Equal(s.T(), domain.OrderStatusCancelled, abandoned.Status)
	require.Equal(s.T(), domain.PaymentStatusFailed, abandoned.PaymentStatus)
	require.Equal(s.T(), ExpiredSessionReason, abandoned.CancellationReason)
	require.Len(s.T(), s.cartItems(userID), 1)
}

func (s *ServiceTestSuite) TestSweepLeavesActiveSessions() {
	order := s.placeOrder(uuid.New(), 200, "", "")
	s.advance(2 * time.Hour)

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), SweepReport{Checked: 1, Left: 1}, report)
	require.Equal(s.T(), domain.OrderStatusPending, s.order(order.ID).Status)
}

func (s *ServiceTestSuite) TestSweepCompensatesOrdersWithoutSession() {
	userID := uuid.New()
	product := s.product(90)
	order := domain.NewOrder(userID, decimal.NewFromInt(180), domain.PaymentMethodOnline, s.now)
	require.NoError(s.T(), s.store.Orders().CreateOrder(s.ctx, order))
	require.NoError(s.T(), s.store.Orders().AddOrderItems(s.ctx, []domain.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, ProductID: product.ID, Quantity: 2, PriceAtPurchase: product.Price},
	}))
	s.advance(2 * time.Hour)

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), SweepReport{Checked: 1, Abandoned: 1}, report)
	require.Equal(s.T(), SessionFailureReason, s.order(order.ID).CancellationReason)

	items := s.cartItems(userID)
	require.Len(s.T(), items, 1, "a cart is created to hold the restored items")
	require.Equal(s.T(), 2, items[0].Quantity)
}

func (s *ServiceTestSuite) TestSweepCountsGatewayFailures() {
	s.placeOrder(uuid.New(), 200, "", "")
	s.advance(2 * time.Hour)

	// the mock gateway only knows orders it opened a session for
	other := domain.NewOrder(uuid.New(), decimal.NewFromInt(50), domain.PaymentMethodOnline, s.now.Add(-3*time.Hour))
	other.PaymentSessionID = "session_unknown"
	require.NoError(s.T(), s.store.Orders().CreateOrder(s.ctx, other))

	report, err := s.sweeper.SweepStalePending(s.ctx, time.Hour)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, report.Checked)
	require.Equal(s.T(), 1, report.Failed)
	require.Equal(s.T(), 1, report.Left)
}

func (s *ServiceTestSuite) TestReconcileReversalsRepairsMissingEntries() {
	affiliate := s.registerAffiliate("REPAIR", 5)
	order := s.paidOrder(uuid.New(), 1000, "REPAIR")

	// a cancellation written without its reversal
	changed, err := s.store.Orders().CancelOrder(s.ctx, order.ID, "manual fix", s.now)
	require.NoError(s.T(), err)
	require.True(s.T(), changed)

	repaired, err := s.sweeper.ReconcileReversals(s.ctx)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, repaired)

	repaired, err = s.sweeper.ReconcileReversals(s.ctx)
	require.NoError(s.T(), err)
	require.Zero(s.T(), repaired)

	require.True(s.T(), s.ledger(affiliate.ID).Summary.Earned.IsZero())
}
