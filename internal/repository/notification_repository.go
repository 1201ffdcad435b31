package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type NotificationRepo struct {
	q DBTX
}

func (r *NotificationRepo) CreateNotification(ctx context.Context, notification *domain.Notification) error {
	query := `
		INSERT INTO notifications (
			id, order_id, audience, kind, status,
			subject, message, recipient, created_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.ExecContext(ctx, query,
		notification.ID,
		notification.OrderID,
		notification.Audience,
		notification.Kind,
		notification.Status,
		notification.Subject,
		notification.Message,
		notification.Recipient,
		notification.CreatedAt,
		notification.SentAt,
	)
	if err != nil {
		return domain.PersistenceError("notification creation error", err)
	}
	return nil
}

func (r *NotificationRepo) UpdateNotification(ctx context.Context, notification *domain.Notification) error {
	query := `
		UPDATE notifications
		SET status = $2, sent_at = $3
		WHERE id = $1
	`

	if _, err := r.q.ExecContext(ctx, query, notification.ID, notification.Status, notification.SentAt); err != nil {
		return domain.PersistenceError("notification update error", err)
	}
	return nil
}

func (r *NotificationRepo) GetNotificationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Notification, error) {
	query := `
		SELECT id, order_id, audience, kind, status,
		       subject, message, recipient, created_at, sent_at
		FROM notifications
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, domain.PersistenceError("notifications retrieval error", err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		notification := &domain.Notification{}
		var sentAt sql.NullTime

		err := rows.Scan(
			&notification.ID,
			&notification.OrderID,
			&notification.Audience,
			&notification.Kind,
			&notification.Status,
			&notification.Subject,
			&notification.Message,
			&notification.Recipient,
			&notification.CreatedAt,
			&sentAt,
		)
		if err != nil {
			return nil, domain.PersistenceError("notification scan error", err)
		}

		if sentAt.Valid {
			notification.SentAt = &sentAt.Time
		}
		notifications = append(notifications, notification)
	}

	return notifications, rows.Err()
}
