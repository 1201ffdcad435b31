package service

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

func (s *ServiceTestSuite) TestCancelUnpaidOrder() {
	userID := uuid.New()
	order := s.placeOrder(userID, 500, "", "")

	result, err := s.cancellations.Cancel(s.ctx, order.ID, userID, "  ")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RefundNotRequired, result.RefundStatus)
	require.Equal(s.T(), domain.OrderStatusCancelled, result.Order.Status)
	require.Equal(s.T(), domain.DefaultCancellationReason, result.Order.CancellationReason)

	notices := s.notifier.cancellations()
	require.Len(s.T(), notices, 1)
	require.Equal(s.T(), cancelNotice{
		OrderID:    order.ID,
		Reason:     domain.DefaultCancellationReason,
		RefundText: string(domain.RefundNotRequired),
	}, notices[0])
}

func (s *ServiceTestSuite) TestCancelPaidOrderOwesRefundAndReversesCommission() {
	affiliate := s.registerAffiliate("FRIEND", 5)
	userID := uuid.New()
	order := s.paidOrder(userID, 1000, "FRIEND")

	result, err := s.cancellations.Cancel(s.ctx, order.ID, userID, "ordered twice")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RefundPending, result.RefundStatus)
	require.Equal(s.T(), "ordered twice", result.Order.CancellationReason)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, result.Order.PaymentStatus, "refunds are executed by an admin")

	ledger := s.ledger(affiliate.ID)
	require.Len(s.T(), ledger.Entries, 2)
	require.True(s.T(), ledger.Summary.Earned.IsZero())
	require.Equal(s.T(), "50.00", ledger.Summary.Reversed.StringFixed(2))
}

func (s *ServiceTestSuite) TestCancelCashOnDelivery() {
	userID := uuid.New()
	order := s.placeOrder(userID, 700, "cod", "")

	result, err := s.cancellations.Cancel(s.ctx, order.ID, userID, "changed my mind")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RefundNotRequired, result.RefundStatus)

	notices := s.notifier.cancellations()
	require.Len(s.T(), notices, 1)
	require.True(s.T(), notices[0].IsCOD)
}

func (s *ServiceTestSuite) TestCancelSurvivesNotifierFailure() {
	userID := uuid.New()
	order := s.paidOrder(userID, 600, "")
	s.notifier.failWith(errors.New("broker unreachable"))

	result, err := s.cancellations.Cancel(s.ctx, order.ID, userID, "")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.RefundPending, result.RefundStatus)
	require.Equal(s.T(), domain.OrderStatusCancelled, s.order(order.ID).Status)
	require.Len(s.T(), s.notifier.cancellations(), 1, "dispatch was attempted")
}

func (s *ServiceTestSuite) TestCancelRefusals() {
	owner := uuid.New()
	pending := s.placeOrder(owner, 300, "", "")

	shipped := s.paidOrder(owner, 300, "")
	_, err := s.orders.AdvanceStatus(s.ctx, shipped.ID, domain.OrderStatusShipped)
	require.NoError(s.T(), err)

	cancelled := s.placeOrder(owner, 300, "", "")
	_, err = s.cancellations.Cancel(s.ctx, cancelled.ID, owner, "")
	require.NoError(s.T(), err)

	_, err = s.cancellations.Cancel(s.ctx, uuid.New(), owner, "")
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))

	_, err = s.cancellations.Cancel(s.ctx, pending.ID, uuid.New(), "")
	require.True(s.T(), errors.Is(err, domain.ErrForbidden))
	require.Equal(s.T(), domain.OrderStatusPending, s.order(pending.ID).Status)

	_, err = s.cancellations.Cancel(s.ctx, shipped.ID, owner, "")
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
	require.Contains(s.T(), err.Error(), "shipped")

	_, err = s.cancellations.Cancel(s.ctx, cancelled.ID, owner, "")
	require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
	require.Contains(s.T(), err.Error(), "cancelled")

	require.Len(s.T(), s.notifier.cancellations(), 1)
}

func (s *ServiceTestSuite) TestConcurrentCancelsApplyOnce() {
	userID := uuid.New()
	order := s.placeOrder(userID, 400, "", "")

	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.cancellations.Cancel(s.ctx, order.ID, userID, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(s.T(), errors.Is(err, domain.ErrInvalidState))
	}
	require.Equal(s.T(), 1, succeeded)
	require.Len(s.T(), s.notifier.cancellations(), 1)
}
