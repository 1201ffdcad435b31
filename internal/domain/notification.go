package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationAudience string

const (
	AudienceCustomer NotificationAudience = "customer"
	AudienceAdmin    NotificationAudience = "admin"
)

type NotificationKind string

const (
	NotificationOrderConfirmed NotificationKind = "order_confirmed"
	NotificationOrderCancelled NotificationKind = "order_cancelled"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID        uuid.UUID            `json:"id"`
	OrderID   uuid.UUID            `json:"order_id"`
	Audience  NotificationAudience `json:"audience"`
	Kind      NotificationKind     `json:"kind"`
	Status    NotificationStatus   `json:"status"`
	Subject   string               `json:"subject"`
	Message   string               `json:"message"`
	Recipient string               `json:"recipient"`
	CreatedAt time.Time            `json:"created_at"`
	SentAt    *time.Time           `json:"sent_at,omitempty"`
}

func NewNotification(orderID uuid.UUID, audience NotificationAudience, kind NotificationKind, subject, message, recipient string, now time.Time) *Notification {
	return &Notification{
		ID:        uuid.New(),
		OrderID:   orderID,
		Audience:  audience,
		Kind:      kind,
		Status:    NotificationStatusPending,
		Subject:   subject,
		Message:   message,
		Recipient: recipient,
		CreatedAt: now,
	}
}

func (n *Notification) MarkAsSent(now time.Time) {
	n.Status = NotificationStatusSent
	n.SentAt = &now
}

func (n *Notification) MarkAsFailed() {
	n.Status = NotificationStatusFailed
}
