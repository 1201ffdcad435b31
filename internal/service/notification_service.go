package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/notifier"
	"github.com/wellness-storefront/order-ledger/internal/repository"
	"github.com/wellness-storefront/order-ledger/shared/events"
)

// NotificationService delivers order e-mails to the customer and to the
// store admin. Every message is recorded as a notification row first, and a
// message already sent is never sent again when an event is redelivered.
type NotificationService struct {
	store      repository.Store
	sender     notifier.EmailSender
	adminEmail string
	now        Clock
	logger     zerolog.Logger
}

func NewNotificationService(store repository.Store, sender notifier.EmailSender, adminEmail string, clock Clock, logger zerolog.Logger) *NotificationService {
	return &NotificationService{
		store:      store,
		sender:     sender,
		adminEmail: adminEmail,
		now:        orDefault(clock),
		logger:     logger.With().Str("component", "notifications").Logger(),
	}
}

// HandleEvent matches messaging.EventHandler.
func (s *NotificationService) HandleEvent(ctx context.Context, event events.OrderEvent) error {
	order, err := s.store.Orders().GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("notification order lookup error: %w", err)
	}

	var messages []*domain.Notification
	switch event.EventType {
	case events.OrderConfirmedEvent:
		messages = s.confirmationMessages(order)
	case events.OrderCancelledEvent:
		var payload events.OrderCancelledPayload
		if err := event.DecodePayload(&payload); err != nil {
			return fmt.Errorf("cancellation payload decode error: %w", err)
		}
		messages = s.cancellationMessages(order, payload)
	default:
		s.logger.Warn().Str("event_type", string(event.EventType)).Msg("no notification for event type")
		return nil
	}

	return s.deliver(ctx, order.ID, messages)
}

func (s *NotificationService) GetNotificationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Notification, error) {
	return s.store.Notifications().GetNotificationsByOrderID(ctx, orderID)
}

func (s *NotificationService) deliver(ctx context.Context, orderID uuid.UUID, messages []*domain.Notification) error {
	existing, err := s.store.Notifications().GetNotificationsByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	var failed int
	for _, message := range messages {
		notification, send := reuseNotification(existing, message)
		if !send {
			continue
		}
		if notification == message {
			if err := s.store.Notifications().CreateNotification(ctx, notification); err != nil {
				return err
			}
		}

		log := s.logger.With().
			Str("order_id", orderID.String()).
			Str("audience", string(notification.Audience)).
			Str("kind", string(notification.Kind)).
			Logger()

		if err := s.sender.Send(ctx, notification.Recipient, notification.Subject, notification.Message); err != nil {
			failed++
			notification.MarkAsFailed()
			log.Error().Err(err).Msg("notification send failed")
		} else {
			notification.MarkAsSent(s.now())
			log.Info().Str("recipient", notification.Recipient).Msg("notification sent")
		}

		if err := s.store.Notifications().UpdateNotification(ctx, notification); err != nil {
			log.Error().Err(err).Msg("notification status update error")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d notification(s) for order %s failed", failed, orderID)
	}
	return nil
}

// reuseNotification picks the stored row for a message if one exists. Rows
// already sent are skipped.
func reuseNotification(existing []*domain.Notification, message *domain.Notification) (*domain.Notification, bool) {
	for _, n := range existing {
		if n.Kind != message.Kind || n.Audience != message.Audience {
			continue
		}
		if n.Status == domain.NotificationStatusSent {
			return n, false
		}
		return n, true
	}
	return message, true
}

func (s *NotificationService) confirmationMessages(order *domain.Order) []*domain.Notification {
	now := s.now()
	ref := orderReference(order.ID)

	customer := fmt.Sprintf(
		"Hi %s,\n\nThank you for your order %s. We have received it and will ship it soon.\n\nTotal: %s\nPayment: %s\n",
		order.CustomerName, ref, order.TotalAmount.StringFixed(2), paymentLabel(order),
	)
	admin := fmt.Sprintf(
		"New order %s from %s <%s>.\nTotal: %s\nPayment: %s\nShip to: %s, %s %s\n",
		ref, order.CustomerName, order.CustomerEmail, order.TotalAmount.StringFixed(2), paymentLabel(order),
		order.ShippingAddress.City, order.ShippingAddress.State, order.ShippingAddress.ZipCode,
	)

	return []*domain.Notification{
		domain.NewNotification(order.ID, domain.AudienceCustomer, domain.NotificationOrderConfirmed,
			"Order confirmed: "+ref, customer, order.CustomerEmail, now),
		domain.NewNotification(order.ID, domain.AudienceAdmin, domain.NotificationOrderConfirmed,
			"New order "+ref, admin, s.adminEmail, now),
	}
}

func (s *NotificationService) cancellationMessages(order *domain.Order, payload events.OrderCancelledPayload) []*domain.Notification {
	now := s.now()
	ref := orderReference(order.ID)

	refundLine := "Refund: " + payload.RefundStatus
	if payload.IsCOD {
		refundLine = "This was a cash on delivery order, so no payment was taken."
	}

	customer := fmt.Sprintf(
		"Hi %s,\n\nYour order %s has been cancelled.\nReason: %s\n%s\n",
		order.CustomerName, ref, payload.Reason, refundLine,
	)
	admin := fmt.Sprintf(
		"Order %s was cancelled by the customer.\nReason: %s\nRefund status: %s\nPayment method: %s\n",
		ref, payload.Reason, payload.RefundStatus, order.PaymentMethod,
	)

	return []*domain.Notification{
		domain.NewNotification(order.ID, domain.AudienceCustomer, domain.NotificationOrderCancelled,
			"Order cancelled: "+ref, customer, order.CustomerEmail, now),
		domain.NewNotification(order.ID, domain.AudienceAdmin, domain.NotificationOrderCancelled,
			"Order cancelled "+ref, admin, s.adminEmail, now),
	}
}

func orderReference(orderID uuid.UUID) string {
	return "#" + strings.ToUpper(orderID.String()[:8])
}

func paymentLabel(order *domain.Order) string {
	if order.IsCOD() {
		return "Cash on delivery"
	}
	return "Paid online"
}
