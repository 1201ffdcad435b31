package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/wellness-storefront/order-ledger/shared/events"
)

type Publisher struct {
	client *RabbitMQClient
	logger zerolog.Logger
}

func NewPublisher(client *RabbitMQClient, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, event events.OrderEvent) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	routingKey := event.RoutingKey()

	err = p.client.Channel().Publish(
		p.client.Exchange(),
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.Timestamp,
			Headers: amqp.Table{
				"order_id":       event.OrderID.String(),
				"correlation_id": event.CorrelationID.String(),
				"service":        event.Service,
				"event_type":     string(event.EventType),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish error: %w", err)
	}

	p.logger.Debug().
		Str("routing_key", routingKey).
		Str("order_id", event.OrderID.String()).
		Msg("event published")
	return nil
}

// PublishWithRetry backs off linearly between attempts and gives up early
// when ctx is done.
func (p *Publisher) PublishWithRetry(ctx context.Context, event events.OrderEvent, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		lastErr = p.PublishOrderEvent(ctx, event)
		if lastErr == nil {
			return nil
		}
		p.logger.Warn().Err(lastErr).Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("event publish failed")

		if i < maxRetries-1 {
			select {
			case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("event publish failed after %d attempts: %w", maxRetries, lastErr)
}
