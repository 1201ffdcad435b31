package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderEventType string

const (
	OrderConfirmedEvent OrderEventType = "order.confirmed"
	OrderCancelledEvent OrderEventType = "order.cancelled"
)

type OrderEvent struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	EventType     OrderEventType  `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Service       string          `json:"service"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
}

type OrderConfirmedPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

type OrderCancelledPayload struct {
	OrderID      uuid.UUID `json:"order_id"`
	Reason       string    `json:"reason"`
	RefundStatus string    `json:"refund_status"`
	IsCOD        bool      `json:"is_cod"`
}

func NewOrderEvent(eventType OrderEventType, orderID uuid.UUID, service string, payload interface{}) (OrderEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("event payload serialization error: %w", err)
	}
	return OrderEvent{
		ID:            uuid.New(),
		OrderID:       orderID,
		EventType:     eventType,
		Payload:       body,
		Timestamp:     time.Now().UTC(),
		Service:       service,
		CorrelationID: uuid.New(),
	}, nil
}

func (e OrderEvent) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event payload deserialization error: %w", err)
	}
	return nil
}

// RoutingKey places the event on the topic exchange as
// order.<service>.<event type>.
func (e OrderEvent) RoutingKey() string {
	return fmt.Sprintf("order.%s.%s", e.Service, e.EventType)
}
