package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/wellness-storefront/order-ledger/shared/events"
)

const redeliveryHeader = "x-redelivery-count"

type EventHandler func(ctx context.Context, event events.OrderEvent) error

type Consumer struct {
	client      *RabbitMQClient
	queueName   string
	serviceName string
	logger      zerolog.Logger
}

func NewConsumer(client *RabbitMQClient, queueName, serviceName string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		serviceName: serviceName,
		logger:      logger.With().Str("queue", queueName).Logger(),
	}
}

// ConsumeEvents binds the queue and processes deliveries until ctx is done
// or the client is closed. It returns once consumption has started.
func (c *Consumer) ConsumeEvents(ctx context.Context, routingKeys []string, handler EventHandler) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare error: %w", err)
	}

	for _, routingKey := range routingKeys {
		err = channel.QueueBind(
			queue.Name,          // queue name
			routingKey,          // routing key
			c.client.Exchange(), // exchange
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("queue bind error (%s): %w", routingKey, err)
		}
		c.logger.Info().Str("routing_key", routingKey).Msg("queue bound")
	}

	messages, err := channel.Consume(
		queue.Name,    // queue
		c.serviceName, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("consume start error: %w", err)
	}

	c.logger.Info().Msg("consuming events")

	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					c.logger.Warn().Msg("delivery channel closed")
					return
				}
				c.handleMessage(ctx, msg, handler)
			case <-ctx.Done():
				c.logger.Info().Str("consumer", c.serviceName).Msg("consumer stopped")
				return
			case <-c.client.Done():
				c.logger.Info().Str("consumer", c.serviceName).Msg("consumer stopped")
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery, handler EventHandler) {
	var event events.OrderEvent

	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Msg("event deserialize error")
		msg.Nack(false, false)
		return
	}

	log := c.logger.With().
		Str("event_type", string(event.EventType)).
		Str("order_id", event.OrderID.String()).
		Logger()

	if err := handler(ctx, event); err != nil {
		log.Error().Err(err).Msg("event process error")

		if redeliveries(msg) < c.client.config.MaxRedeliveries {
			c.republish(msg, log)
		} else {
			log.Warn().Msg("max redeliveries reached, dropping event")
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
	log.Debug().Msg("event processed")
}

func redeliveries(msg amqp.Delivery) int {
	switch v := msg.Headers[redeliveryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (c *Consumer) republish(msg amqp.Delivery, log zerolog.Logger) {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[redeliveryHeader] = int32(redeliveries(msg) + 1)

	err := c.client.Channel().Publish(
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: msg.DeliveryMode,
			MessageId:    msg.MessageId,
			Headers:      headers,
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("retry publish error")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
	log.Info().Int("redelivery", redeliveries(msg)+1).Msg("event republished")
}
