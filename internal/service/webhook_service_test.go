package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

func (s *ServiceTestSuite) TestWebhookConfirmsPaymentOnce() {
	order := s.placeOrder(uuid.New(), 500, "", "")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")

	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeConfirmed, outcome)

	confirmed := s.order(order.ID)
	require.Equal(s.T(), domain.OrderStatusProcessing, confirmed.Status)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, confirmed.PaymentStatus)
	require.NotNil(s.T(), confirmed.PaidAt)

	outcome, err = s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeAlreadyApplied, outcome)

	require.Equal(s.T(), 1, s.notifier.confirmations(order.ID))
}

func (s *ServiceTestSuite) TestConcurrentDuplicateWebhooksNotifyOnce() {
	affiliate := s.registerAffiliate("TWINS", 5)
	order := s.placeOrder(uuid.New(), 1000, "", "TWINS")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")
	signature := sign(body)

	const deliveries = 20
	var wg sync.WaitGroup
	outcomes := make([]PaymentOutcome, deliveries)
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = s.webhooks.HandleWebhook(s.ctx, signature, testTimestamp, body)
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for i := range outcomes {
		require.NoError(s.T(), errs[i])
		if outcomes[i] == OutcomeConfirmed {
			confirmed++
			continue
		}
		require.Equal(s.T(), OutcomeAlreadyApplied, outcomes[i])
	}
	require.Equal(s.T(), 1, confirmed)
	require.Equal(s.T(), 1, s.notifier.confirmations(order.ID))
	require.Equal(s.T(), domain.OrderStatusProcessing, s.order(order.ID).Status)
	require.Len(s.T(), s.ledger(affiliate.ID).Entries, 1)
}

func (s *ServiceTestSuite) TestWebhookSurvivesNotifierFailure() {
	order := s.placeOrder(uuid.New(), 500, "", "")
	s.notifier.failWith(errors.New("broker unreachable"))
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")

	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeConfirmed, outcome)
	require.Equal(s.T(), 1, s.notifier.confirmations(order.ID), "dispatch was attempted")

	confirmed := s.order(order.ID)
	require.Equal(s.T(), domain.OrderStatusProcessing, confirmed.Status)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, confirmed.PaymentStatus)
}

func (s *ServiceTestSuite) TestWebhookStoreFailureIsReported() {
	order := s.placeOrder(uuid.New(), 500, "", "")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")

	s.store.FailWrites(errors.New("connection reset"))
	_, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.True(s.T(), errors.Is(err, domain.ErrPersistence))
	s.store.FailWrites(nil)

	require.Equal(s.T(), domain.OrderStatusPending, s.order(order.ID).Status)
	require.Zero(s.T(), s.notifier.confirmations(order.ID))

	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeConfirmed, outcome, "the gateway retry applies the payment")
}

func (s *ServiceTestSuite) TestWebhookRejectsBadSignatureBeforeTouchingStore() {
	order := s.placeOrder(uuid.New(), 500, "", "")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")
	signature := sign(body)
	tampered := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS ")

	calls := s.store.Calls()
	_, err := s.webhooks.HandleWebhook(s.ctx, signature, testTimestamp, tampered)
	require.True(s.T(), errors.Is(err, domain.ErrAuth))
	require.Equal(s.T(), calls, s.store.Calls())

	_, err = s.webhooks.HandleWebhook(s.ctx, "", testTimestamp, body)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	_, err = s.webhooks.HandleWebhook(s.ctx, signature, "", body)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	require.Equal(s.T(), calls, s.store.Calls())

	require.Equal(s.T(), domain.OrderStatusPending, s.order(order.ID).Status)
}

func (s *ServiceTestSuite) TestWebhookIgnoresUnknownTypes() {
	body := []byte(`{"type":"REFUND_STATUS_WEBHOOK","data":{"refund":{"refund_id":"r1"}}}`)

	calls := s.store.Calls()
	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeIgnored, outcome)
	require.Equal(s.T(), calls, s.store.Calls())
}

func (s *ServiceTestSuite) TestWebhookUnknownOrder() {
	body := webhookBody(PaymentSuccessWebhook, uuid.NewString(), "SUCCESS")

	_, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *ServiceTestSuite) TestWebhookMalformedBodies() {
	for name, body := range map[string][]byte{
		"not json":         []byte(`type=PAYMENT_SUCCESS_WEBHOOK`),
		"invalid order id": webhookBody(PaymentSuccessWebhook, "order-17", "SUCCESS"),
	} {
		s.Run(name, func() {
			_, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
			require.True(s.T(), errors.Is(err, domain.ErrValidation))
		})
	}
}

func (s *ServiceTestSuite) TestSuccessWebhookWithoutSuccessfulPaymentIsIgnored() {
	order := s.placeOrder(uuid.New(), 500, "", "")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "PENDING")

	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeIgnored, outcome)
	require.Equal(s.T(), domain.PaymentStatusPending, s.order(order.ID).PaymentStatus)
}

func (s *ServiceTestSuite) TestFailedPaymentCanBeRetried() {
	order := s.placeOrder(uuid.New(), 500, "", "")

	for _, eventType := range []string{PaymentFailedWebhook, PaymentUserDroppedWebhook} {
		body := webhookBody(eventType, order.ID.String(), "FAILED")
		_, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
		require.NoError(s.T(), err)
	}

	failed := s.order(order.ID)
	require.Equal(s.T(), domain.OrderStatusPending, failed.Status)
	require.Equal(s.T(), domain.PaymentStatusFailed, failed.PaymentStatus)

	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")
	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeConfirmed, outcome)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, s.order(order.ID).PaymentStatus)
}

func (s *ServiceTestSuite) TestFailureWebhookDoesNotUndoSuccess() {
	order := s.paidOrder(uuid.New(), 500, "")
	body := webhookBody(PaymentFailedWebhook, order.ID.String(), "FAILED")

	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeIgnored, outcome)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, s.order(order.ID).PaymentStatus)
}

func (s *ServiceTestSuite) TestPaymentAfterCancellationIsRecorded() {
	userID := uuid.New()
	order := s.placeOrder(userID, 500, "", "")
	_, err := s.cancellations.Cancel(s.ctx, order.ID, userID, "")
	require.NoError(s.T(), err)

	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")
	outcome, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeLatePayment, outcome)

	late := s.order(order.ID)
	require.Equal(s.T(), domain.OrderStatusCancelled, late.Status)
	require.Equal(s.T(), domain.PaymentStatusSucceeded, late.PaymentStatus)
	require.Equal(s.T(), domain.RefundPending, late.RefundClassification())
	require.Zero(s.T(), s.notifier.confirmations(order.ID))

	outcome, err = s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), OutcomeLatePayment, outcome)
}

func (s *ServiceTestSuite) TestWebhookAccruesCommissionOnce() {
	affiliate := s.registerAffiliate("PARTNER", 5)
	order := s.placeOrder(uuid.New(), 1000, "", "partner")
	body := webhookBody(PaymentSuccessWebhook, order.ID.String(), "SUCCESS")

	for i := 0; i < 3; i++ {
		_, err := s.webhooks.HandleWebhook(s.ctx, sign(body), testTimestamp, body)
		require.NoError(s.T(), err)
	}

	ledger := s.ledger(affiliate.ID)
	require.Len(s.T(), ledger.Entries, 1)
	entry := ledger.Entries[0]
	require.Equal(s.T(), domain.EntryAccrual, entry.Kind)
	require.Equal(s.T(), order.ID, entry.OrderID)
	require.Equal(s.T(), "50.00", entry.Amount.StringFixed(2))
	require.Equal(s.T(), s.now.Add(14*24*time.Hour), entry.AvailableAt)
}
