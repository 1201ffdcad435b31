package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID                uuid.UUID       `json:"id"`
	Code              string          `json:"code"`
	DiscountType      DiscountType    `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	UsageLimit        int             `json:"usage_limit"` // 0 means unlimited
	UsedCount         int             `json:"used_count"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func NewCoupon(code string, discountType DiscountType, value, minPurchase decimal.Decimal, usageLimit int, now time.Time) (*Coupon, error) {
	coupon := &Coupon{
		ID:                uuid.New(),
		Code:              NormalizeCouponCode(code),
		DiscountType:      discountType,
		DiscountValue:     value,
		MinPurchaseAmount: minPurchase,
		UsageLimit:        usageLimit,
		IsActive:          true,
		CreatedAt:         now,
	}
	if err := coupon.validateDefinition(); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (c *Coupon) validateDefinition() error {
	if c.Code == "" {
		return ValidationError("coupon code is required")
	}
	switch c.DiscountType {
	case DiscountPercentage:
		if c.DiscountValue.IsNegative() || c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return ValidationError("percentage discount must be between 0 and 100")
		}
	case DiscountFixed:
		if c.DiscountValue.IsNegative() {
			return ValidationError("fixed discount must not be negative")
		}
	default:
		return ValidationError("unknown discount type %q", c.DiscountType)
	}
	if c.MinPurchaseAmount.IsNegative() {
		return ValidationError("minimum purchase amount must not be negative")
	}
	if c.UsageLimit < 0 {
		return ValidationError("usage limit must not be negative")
	}
	return nil
}

// CheckApplicable reports why a coupon cannot be used for this subtotal.
func (c *Coupon) CheckApplicable(subtotal decimal.Decimal) error {
	if !c.IsActive {
		return ValidationError("coupon %s is not active", c.Code)
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ValidationError("coupon %s has reached its usage limit", c.Code)
	}
	if subtotal.LessThan(c.MinPurchaseAmount) {
		return ValidationError("coupon %s requires a minimum purchase of %s", c.Code, c.MinPurchaseAmount.StringFixed(2))
	}
	return nil
}

func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		discount = c.DiscountValue
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}
