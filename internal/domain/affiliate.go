package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	DefaultCommissionRate = decimal.NewFromFloat(5.0)
	maxCommissionRate     = decimal.NewFromInt(100)
)

type Affiliate struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	CouponID       uuid.UUID       `json:"coupon_id"`
	CouponCode     string          `json:"coupon_code"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	PayoutInfo     json.RawMessage `json:"payout_info,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ValidateCommissionRate rejects rates outside [0, 100]. Rates are never
// clamped silently.
func ValidateCommissionRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxCommissionRate) {
		return ValidationError("commission rate must be between 0 and 100, got %s", rate.String())
	}
	return nil
}

func NewAffiliate(userID uuid.UUID, coupon *Coupon, rate decimal.Decimal, payoutInfo json.RawMessage, now time.Time) (*Affiliate, error) {
	if userID == uuid.Nil {
		return nil, ValidationError("affiliate user id is required")
	}
	if err := ValidateCommissionRate(rate); err != nil {
		return nil, err
	}
	return &Affiliate{
		ID:             uuid.New(),
		UserID:         userID,
		CouponID:       coupon.ID,
		CouponCode:     coupon.Code,
		CommissionRate: rate,
		PayoutInfo:     payoutInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a *Affiliate) SetCommissionRate(rate decimal.Decimal, now time.Time) error {
	if err := ValidateCommissionRate(rate); err != nil {
		return err
	}
	a.CommissionRate = rate
	a.UpdatedAt = now
	return nil
}
