package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/shared/events"
)

type sentMail struct {
	Recipient string
	Subject   string
	Body      string
}

type spySender struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]bool
}

func (s *spySender) Send(_ context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[recipient] {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, sentMail{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (s *ServiceTestSuite) notificationFixture() (*NotificationService, *spySender, *domain.Order) {
	sender := &spySender{failTo: map[string]bool{}}
	svc := NewNotificationService(s.store, sender, "orders@shop.example", func() time.Time { return s.now }, zerolog.Nop())

	order := domain.NewOrder(uuid.New(), decimal.NewFromInt(640), domain.PaymentMethodOnline, s.now)
	order.CustomerName = "Asha Rao"
	order.CustomerEmail = "asha@example.com"
	require.NoError(s.T(), s.store.Orders().CreateOrder(s.ctx, order))
	return svc, sender, order
}

func (s *ServiceTestSuite) confirmedEvent(orderID uuid.UUID) events.OrderEvent {
	event, err := events.NewOrderEvent(events.OrderConfirmedEvent, orderID, "test", events.OrderConfirmedPayload{OrderID: orderID})
	require.NoError(s.T(), err)
	return event
}

func (s *ServiceTestSuite) TestNotificationsSentToCustomerAndAdmin() {
	svc, sender, order := s.notificationFixture()

	require.NoError(s.T(), svc.HandleEvent(s.ctx, s.confirmedEvent(order.ID)))

	require.Len(s.T(), sender.sent, 2)
	require.Equal(s.T(), "asha@example.com", sender.sent[0].Recipient)
	require.Contains(s.T(), sender.sent[0].Body, "640.00")
	require.Equal(s.T(), "orders@shop.example", sender.sent[1].Recipient)

	stored, err := svc.GetNotificationsByOrderID(s.ctx, order.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), stored, 2)
	for _, n := range stored {
		require.Equal(s.T(), domain.NotificationStatusSent, n.Status)
		require.NotNil(s.T(), n.SentAt)
	}
}

func (s *ServiceTestSuite) TestRedeliveredEventSendsOnlyWhatFailed() {
	svc, sender, order := s.notificationFixture()
	sender.failTo["orders@shop.example"] = true

	err := svc.HandleEvent(s.ctx, s.confirmedEvent(order.ID))
	require.Error(s.T(), err, "a failed send asks for redelivery")
	require.Len(s.T(), sender.sent, 1)

	sender.failTo["orders@shop.example"] = false
	require.NoError(s.T(), svc.HandleEvent(s.ctx, s.confirmedEvent(order.ID)))
	require.Len(s.T(), sender.sent, 2)
	require.Equal(s.T(), "orders@shop.example", sender.sent[1].Recipient)

	require.NoError(s.T(), svc.HandleEvent(s.ctx, s.confirmedEvent(order.ID)))
	require.Len(s.T(), sender.sent, 2)

	stored, err := svc.GetNotificationsByOrderID(s.ctx, order.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), stored, 2, "retries reuse the stored rows")
}

func (s *ServiceTestSuite) TestCancellationNoticeForCashOnDelivery() {
	svc, sender, order := s.notificationFixture()
	event, err := events.NewOrderEvent(events.OrderCancelledEvent, order.ID, "test", events.OrderCancelledPayload{
		OrderID:      order.ID,
		Reason:       "changed my mind",
		RefundStatus: string(domain.RefundNotRequired),
		IsCOD:        true,
	})
	require.NoError(s.T(), err)

	require.NoError(s.T(), svc.HandleEvent(s.ctx, event))

	require.Len(s.T(), sender.sent, 2)
	require.Contains(s.T(), sender.sent[0].Body, "changed my mind")
	require.Contains(s.T(), sender.sent[0].Body, "cash on delivery")
	require.Contains(s.T(), sender.sent[1].Body, string(domain.RefundNotRequired))
}

func (s *ServiceTestSuite) TestNotificationForUnknownOrder() {
	svc, _, _ := s.notificationFixture()

	err := svc.HandleEvent(s.ctx, s.confirmedEvent(uuid.New()))
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}
