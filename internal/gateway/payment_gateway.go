package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// PaymentGateway is the hosted-checkout provider. Only the session and the
// webhook signature are handled here; money never moves through this
// service.
type PaymentGateway interface {
	CreateSession(ctx context.Context, request SessionRequest) (*Session, error)
	GetOrderStatus(ctx context.Context, orderID uuid.UUID) (OrderStatus, error)
	VerifySignature(signature string, rawBody []byte, timestamp string) error
}

type SessionRequest struct {
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	CustomerID    uuid.UUID
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
}

type Session struct {
	SessionID      string `json:"payment_session_id"`
	GatewayOrderID string `json:"cf_order_id"`
}

// OrderStatus is the gateway's view of a checkout order.
type OrderStatus string

const (
	OrderActive     OrderStatus = "ACTIVE"
	OrderPaid       OrderStatus = "PAID"
	OrderExpired    OrderStatus = "EXPIRED"
	OrderTerminated OrderStatus = "TERMINATED"
)

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether a gateway failure may succeed on another
// attempt: transport errors, timeouts, 429 and 5xx are, other 4xx are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	return domain.KindOf(err) == domain.KindUpstream
}

// ReturnURL expands the {order_id} placeholder of a return URL template.
func ReturnURL(template string, orderID uuid.UUID) string {
	return strings.ReplaceAll(template, "{order_id}", orderID.String())
}
