package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/shared/events"
	"github.com/wellness-storefront/order-ledger/shared/messaging"
)

const serviceName = "order-ledger"

// Notifier hands order notifications to delivery. Callers treat every
// error as non-fatal.
type Notifier interface {
	SendOrderEmails(ctx context.Context, orderID uuid.UUID) error
	SendCancellationEmails(ctx context.Context, orderID uuid.UUID, reason, refundText string, isCOD bool) error
}

type EventPublisher interface {
	PublishWithRetry(ctx context.Context, event events.OrderEvent, maxRetries int) error
}

// AMQPNotifier publishes notification events for the worker to deliver.
type AMQPNotifier struct {
	publisher EventPublisher
	timeout   time.Duration
	retries   int
	logger    zerolog.Logger
}

func NewAMQPNotifier(publisher EventPublisher, timeout time.Duration, logger zerolog.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		publisher: publisher,
		timeout:   timeout,
		retries:   3,
		logger:    logger.With().Str("component", "amqp_notifier").Logger(),
	}
}

func (n *AMQPNotifier) SendOrderEmails(ctx context.Context, orderID uuid.UUID) error {
	event, err := events.NewOrderEvent(events.OrderConfirmedEvent, orderID, serviceName,
		events.OrderConfirmedPayload{OrderID: orderID})
	if err != nil {
		return err
	}
	return n.publish(ctx, event)
}

func (n *AMQPNotifier) SendCancellationEmails(ctx context.Context, orderID uuid.UUID, reason, refundText string, isCOD bool) error {
	event, err := events.NewOrderEvent(events.OrderCancelledEvent, orderID, serviceName,
		events.OrderCancelledPayload{OrderID: orderID, Reason: reason, RefundStatus: refundText, IsCOD: isCOD})
	if err != nil {
		return err
	}
	return n.publish(ctx, event)
}

func (n *AMQPNotifier) publish(ctx context.Context, event events.OrderEvent) error {
	ctx, cancel := withTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.publisher.PublishWithRetry(ctx, event, n.retries); err != nil {
		return fmt.Errorf("notification publish error: %w", err)
	}
	n.logger.Debug().Str("order_id", event.OrderID.String()).Str("event_type", string(event.EventType)).Msg("notification queued")
	return nil
}

// InlineNotifier delivers in-process through the same handler the worker
// runs, for deployments without a broker.
type InlineNotifier struct {
	handle  messaging.EventHandler
	timeout time.Duration
}

func NewInlineNotifier(handle messaging.EventHandler, timeout time.Duration) *InlineNotifier {
	return &InlineNotifier{handle: handle, timeout: timeout}
}

func (n *InlineNotifier) SendOrderEmails(ctx context.Context, orderID uuid.UUID) error {
	event, err := events.NewOrderEvent(events.OrderConfirmedEvent, orderID, serviceName,
		events.OrderConfirmedPayload{OrderID: orderID})
	if err != nil {
		return err
	}
	return n.deliver(ctx, event)
}

func (n *InlineNotifier) SendCancellationEmails(ctx context.Context, orderID uuid.UUID, reason, refundText string, isCOD bool) error {
	event, err := events.NewOrderEvent(events.OrderCancelledEvent, orderID, serviceName,
		events.OrderCancelledPayload{OrderID: orderID, Reason: reason, RefundStatus: refundText, IsCOD: isCOD})
	if err != nil {
		return err
	}
	return n.deliver(ctx, event)
}

func (n *InlineNotifier) deliver(ctx context.Context, event events.OrderEvent) error {
	ctx, cancel := withTimeout(ctx, n.timeout)
	defer cancel()
	return n.handle(ctx, event)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
