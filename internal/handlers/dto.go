package handlers

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type CheckoutRequest struct {
	UserID          string                 `json:"userId"`
	Amount          decimal.Decimal        `json:"amount"`
	CustomerPhone   string                 `json:"customerPhone"`
	CustomerEmail   string                 `json:"customerEmail"`
	CustomerName    string                 `json:"customerName"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	CouponCode      string                 `json:"couponCode"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type AddCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type AdvanceStatusRequest struct {
	Status string `json:"status"`
}

type CreateCouponRequest struct {
	Code              string          `json:"code"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	UsageLimit        int             `json:"usage_limit"`
}

type SetCouponActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type RegisterAffiliateRequest struct {
	UserID         string           `json:"user_id"`
	CouponCode     string           `json:"coupon_code"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
	PayoutInfo     json.RawMessage  `json:"payout_info"`
}

type SetCommissionRateRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

type CartResponse struct {
	ID       string            `json:"id,omitempty"`
	Items    []domain.CartItem `json:"items"`
	Subtotal string            `json:"subtotal"`
}

func mapCart(cart *domain.Cart) CartResponse {
	response := CartResponse{
		Items:    cart.Items,
		Subtotal: domain.Subtotal(cart.Items).StringFixed(2),
	}
	if response.Items == nil {
		response.Items = []domain.CartItem{}
	}
	if cart.ID != uuid.Nil {
		response.ID = cart.ID.String()
	}
	return response
}
