package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCOD    PaymentMethod = "COD"
)

type RefundStatus string

const (
	RefundPending     RefundStatus = "Refund Pending"
	RefundNotRequired RefundStatus = "No Refund Required"
)

const DefaultCancellationReason = "User cancelled"

// statuses a customer cancellation is refused in
var nonCancellableStatuses = []OrderStatus{
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func NonCancellableStatuses() []OrderStatus {
	out := make([]OrderStatus, len(nonCancellableStatuses))
	copy(out, nonCancellableStatuses)
	return out
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch s := OrderStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return s, nil
	}
	return "", ValidationError("unknown order status %q", raw)
}

// ParsePaymentStatus resolves stored payment states. "paid" is a legacy
// spelling of succeeded and is never written back.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "paid", string(PaymentStatusSucceeded):
		return PaymentStatusSucceeded, nil
	case string(PaymentStatusPending), "":
		return PaymentStatusPending, nil
	case string(PaymentStatusFailed):
		return PaymentStatusFailed, nil
	case string(PaymentStatusRefunded):
		return PaymentStatusRefunded, nil
	}
	return "", ValidationError("unknown payment status %q", raw)
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "online":
		return PaymentMethodOnline, nil
	case "cod":
		return PaymentMethodCOD, nil
	}
	return "", ValidationError("unknown payment method %q", raw)
}

// CanTransitionTo encodes the fulfilment state machine:
// pending -> processing -> shipped -> delivered, and cancelled from
// pending or processing only.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	}
	return false
}

func (s OrderStatus) IsCancellable() bool {
	for _, blocked := range nonCancellableStatuses {
		if s == blocked {
			return false
		}
	}
	return true
}

type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ShippingAmount     decimal.Decimal `json:"shipping_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	CouponCode         string          `json:"coupon_code,omitempty"`
	Status             OrderStatus     `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	ShippingAddress    ShippingAddress `json:"shipping_address"`
	CustomerName       string          `json:"customer_name"`
	CustomerEmail      string          `json:"customer_email"`
	CustomerPhone      string          `json:"customer_phone"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	PaymentSessionID   string          `json:"payment_session_id,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// OrderItem is a price snapshot and is never updated after insert.
type OrderItem struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func NewOrder(userID uuid.UUID, amount decimal.Decimal, method PaymentMethod, now time.Time) *Order {
	return &Order{
		ID:             uuid.New(),
		UserID:         userID,
		TotalAmount:    amount,
		DiscountAmount: decimal.Zero,
		ShippingAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		Status:         OrderStatusPending,
		PaymentStatus:  PaymentStatusPending,
		PaymentMethod:  method,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (o *Order) IsOwnedBy(userID uuid.UUID) bool {
	return o.UserID == userID
}

func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

// RefundClassification only classifies; refunds are executed by an admin.
func (o *Order) RefundClassification() RefundStatus {
	if o.PaymentStatus == PaymentStatusSucceeded && o.PaymentMethod == PaymentMethodOnline {
		return RefundPending
	}
	return RefundNotRequired
}

// NetSalesAmount is the commission base. TotalAmount is what the customer
// was charged, so the coupon discount is already out of it.
func (o *Order) NetSalesAmount() decimal.Decimal {
	net := o.TotalAmount.Sub(o.ShippingAmount).Sub(o.TaxAmount)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

func ItemsFromCart(orderID uuid.UUID, items []CartItem) []OrderItem {
	out := make([]OrderItem, len(items))
	for i, item := range items {
		out[i] = OrderItem{
			ID:              uuid.New(),
			OrderID:         orderID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtAdd,
		}
	}
	return out
}
