package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/gateway"
	"github.com/wellness-storefront/order-ledger/internal/notifier"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

const (
	PaymentSuccessWebhook     = "PAYMENT_SUCCESS_WEBHOOK"
	PaymentFailedWebhook      = "PAYMENT_FAILED_WEBHOOK"
	PaymentUserDroppedWebhook = "PAYMENT_USER_DROPPED_WEBHOOK"

	gatewayPaymentSuccess = "SUCCESS"
)

type WebhookEvent struct {
	Type          string
	OrderID       uuid.UUID
	PaymentStatus string
}

type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

// PaymentOutcome says what a payment event did to the order.
type PaymentOutcome string

const (
	OutcomeConfirmed      PaymentOutcome = "confirmed"
	OutcomeAlreadyApplied PaymentOutcome = "already_applied"
	OutcomeLatePayment    PaymentOutcome = "paid_after_cancel"
	OutcomeFailed         PaymentOutcome = "failed"
	OutcomeIgnored        PaymentOutcome = "ignored"
)

// WebhookService reconciles gateway payment events with orders. Every
// mutation is a compare-and-set, so redelivered events are harmless.
type WebhookService struct {
	store      repository.Store
	gateway    gateway.PaymentGateway
	affiliates *AffiliateService
	notifier   notifier.Notifier
	now        Clock
	logger     zerolog.Logger
}

func NewWebhookService(
	store repository.Store,
	paymentGateway gateway.PaymentGateway,
	affiliates *AffiliateService,
	orderNotifier notifier.Notifier,
	clock Clock,
	logger zerolog.Logger,
) *WebhookService {
	return &WebhookService{
		store:      store,
		gateway:    paymentGateway,
		affiliates: affiliates,
		notifier:   orderNotifier,
		now:        orDefault(clock),
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// HandleWebhook authenticates a raw webhook delivery and applies it. The
// signature is checked before the body is parsed or the store is touched.
func (s *WebhookService) HandleWebhook(ctx context.Context, signature, timestamp string, rawBody []byte) (PaymentOutcome, error) {
	if signature == "" || timestamp == "" {
		return "", domain.ValidationError("missing webhook signature headers")
	}
	if err := s.gateway.VerifySignature(signature, rawBody, timestamp); err != nil {
		s.logger.Warn().Err(err).Msg("webhook rejected")
		return "", err
	}

	event, err := ParseWebhookEvent(rawBody)
	if err != nil {
		return "", err
	}
	return s.HandlePaymentEvent(ctx, event)
}

// ParseWebhookEvent extracts the fields the reconciler acts on. Unknown event
// types parse without an order id.
func ParseWebhookEvent(rawBody []byte) (WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return WebhookEvent{}, domain.ValidationError("webhook body is not valid JSON")
	}

	event := WebhookEvent{
		Type:          payload.Type,
		PaymentStatus: payload.Data.Payment.PaymentStatus,
	}
	switch payload.Type {
	case PaymentSuccessWebhook, PaymentFailedWebhook, PaymentUserDroppedWebhook:
		orderID, err := uuid.Parse(strings.TrimSpace(payload.Data.Order.OrderID))
		if err != nil {
			return WebhookEvent{}, domain.ValidationError("webhook order_id %q is not valid", payload.Data.Order.OrderID)
		}
		event.OrderID = orderID
	}
	return event, nil
}

func (s *WebhookService) HandlePaymentEvent(ctx context.Context, event WebhookEvent) (PaymentOutcome, error) {
	log := s.logger.With().
		Str("event_type", event.Type).
		Str("order_id", event.OrderID.String()).
		Str("payment_status", event.PaymentStatus).
		Logger()

	switch event.Type {
	case PaymentSuccessWebhook:
		if !strings.EqualFold(event.PaymentStatus, gatewayPaymentSuccess) {
			log.Warn().Msg("success webhook without a successful payment status, ignoring")
			return OutcomeIgnored, nil
		}
		return s.ApplyPaymentSuccess(ctx, event.OrderID)
	case PaymentFailedWebhook, PaymentUserDroppedWebhook:
		return s.applyPaymentFailure(ctx, event.OrderID, log)
	default:
		log.Info().Msg("webhook type not handled, acknowledging")
		return OutcomeIgnored, nil
	}
}

// ApplyPaymentSuccess confirms a paid order, accrues its commission and
// sends the confirmation once. Payments landing on a cancelled order are
// recorded so the refund is classified as owed.
func (s *WebhookService) ApplyPaymentSuccess(ctx context.Context, orderID uuid.UUID) (PaymentOutcome, error) {
	log := s.logger.With().Str("order_id", orderID.String()).Logger()

	var outcome PaymentOutcome
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().GetOrderByID(ctx, orderID); err != nil {
			return err
		}

		applied, err := tx.Orders().ConfirmPayment(ctx, orderID, s.now())
		if err != nil {
			return err
		}
		current, err := tx.Orders().GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}

		switch {
		case applied:
			outcome = OutcomeConfirmed
			return s.affiliates.AccrueForOrder(ctx, tx, current)
		case current.Status == domain.OrderStatusCancelled:
			outcome = OutcomeLatePayment
			if current.PaymentStatus == domain.PaymentStatusSucceeded || current.PaymentStatus == domain.PaymentStatusRefunded {
				return nil
			}
			_, err := tx.Orders().UpdatePaymentStatus(ctx, orderID, current.PaymentStatus, domain.PaymentStatusSucceeded, s.now())
			return err
		case current.PaymentStatus == domain.PaymentStatusSucceeded:
			outcome = OutcomeAlreadyApplied
			return s.affiliates.AccrueForOrder(ctx, tx, current)
		default:
			outcome = OutcomeIgnored
			log.Warn().Str("status", string(current.Status)).Msg("payment success for an order past pending, ignoring")
			return nil
		}
	})
	if err != nil {
		logFailure(log, err, "payment success not applied")
		return "", err
	}

	switch outcome {
	case OutcomeConfirmed:
		log.Info().Msg("payment confirmed")
		if err := s.notifier.SendOrderEmails(detach(ctx), orderID); err != nil {
			log.Error().Err(err).Msg("order confirmation dispatch failed")
		}
	case OutcomeLatePayment:
		log.Warn().Msg("payment succeeded for a cancelled order, refund owed")
	case OutcomeAlreadyApplied:
		log.Debug().Msg("duplicate payment success")
	}
	return outcome, nil
}

// applyPaymentFailure marks the payment failed; the order stays pending so
// the customer can retry.
func (s *WebhookService) applyPaymentFailure(ctx context.Context, orderID uuid.UUID, log zerolog.Logger) (PaymentOutcome, error) {
	var outcome PaymentOutcome
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Orders().GetOrderByID(ctx, orderID); err != nil {
			return err
		}
		applied, err := tx.Orders().UpdatePaymentStatus(ctx, orderID, domain.PaymentStatusPending, domain.PaymentStatusFailed, s.now())
		if err != nil {
			return err
		}
		outcome = OutcomeIgnored
		if applied {
			outcome = OutcomeFailed
		}
		return nil
	})
	if err != nil {
		logFailure(log, err, "payment failure not applied")
		return "", err
	}

	if outcome == OutcomeFailed {
		log.Info().Msg("payment failed")
	} else {
		log.Debug().Msg("payment failure ignored, payment no longer pending")
	}
	return outcome, nil
}
