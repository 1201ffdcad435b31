package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryAccrual  EntryKind = "accrual"
	EntryReversal EntryKind = "reversal"
)

// CommissionEntry is an immutable ledger fact. Corrections are new
// reversal entries, never edits.
type CommissionEntry struct {
	ID          uuid.UUID       `json:"id"`
	AffiliateID uuid.UUID       `json:"affiliate_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	Kind        EntryKind       `json:"kind"`
	NetSales    decimal.Decimal `json:"net_sales"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	AvailableAt time.Time       `json:"available_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Payout struct {
	ID          uuid.UUID       `json:"id"`
	AffiliateID uuid.UUID       `json:"affiliate_id"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AccrualSkip explains why an order earns no commission.
type AccrualSkip string

const (
	SkipNone         AccrualSkip = ""
	SkipNoCoupon     AccrualSkip = "order has no affiliate coupon"
	SkipCouponOwner  AccrualSkip = "coupon belongs to a different affiliate"
	SkipSelfReferral AccrualSkip = "self-referral"
	SkipNotPaid      AccrualSkip = "payment not succeeded"
	SkipCancelled    AccrualSkip = "order cancelled"
)

func CommissionAmount(netSales, rate decimal.Decimal) decimal.Decimal {
	return netSales.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

// NewAccrual derives the commission an order earns its affiliate. The entry
// matures after the holding period, aligned with the return window.
func NewAccrual(order *Order, affiliate *Affiliate, now time.Time, holding time.Duration) (*CommissionEntry, AccrualSkip) {
	switch {
	case order.CouponCode == "":
		return nil, SkipNoCoupon
	case NormalizeCouponCode(order.CouponCode) != affiliate.CouponCode:
		return nil, SkipCouponOwner
	case order.UserID == affiliate.UserID:
		return nil, SkipSelfReferral
	case order.Status == OrderStatusCancelled:
		return nil, SkipCancelled
	case order.PaymentStatus != PaymentStatusSucceeded:
		return nil, SkipNotPaid
	}

	net := order.NetSalesAmount()
	return &CommissionEntry{
		ID:          uuid.New(),
		AffiliateID: affiliate.ID,
		OrderID:     order.ID,
		Kind:        EntryAccrual,
		NetSales:    net,
		Rate:        affiliate.CommissionRate,
		Amount:      CommissionAmount(net, affiliate.CommissionRate),
		AvailableAt: now.Add(holding),
		CreatedAt:   now,
	}, SkipNone
}

// NewReversal revokes an accrual. Reversals take effect immediately.
func NewReversal(accrual *CommissionEntry, now time.Time) *CommissionEntry {
	return &CommissionEntry{
		ID:          uuid.New(),
		AffiliateID: accrual.AffiliateID,
		OrderID:     accrual.OrderID,
		Kind:        EntryReversal,
		NetSales:    accrual.NetSales,
		Rate:        accrual.Rate,
		Amount:      accrual.Amount.Neg(),
		AvailableAt: now,
		CreatedAt:   now,
	}
}

type LedgerSummary struct {
	Earned   decimal.Decimal `json:"earned"`
	Held     decimal.Decimal `json:"held"`
	Matured  decimal.Decimal `json:"matured"`
	Reversed decimal.Decimal `json:"reversed"`
	PaidOut  decimal.Decimal `json:"paid_out"`
	Payable  decimal.Decimal `json:"payable"`
}

// Summarize folds ledger facts into balances. Earnings are always a sum over
// entries; nothing here is a stored running balance.
func Summarize(entries []CommissionEntry, payouts []Payout, now time.Time) LedgerSummary {
	reversed := make(map[uuid.UUID]bool)
	summary := LedgerSummary{
		Earned:   decimal.Zero,
		Held:     decimal.Zero,
		Matured:  decimal.Zero,
		Reversed: decimal.Zero,
		PaidOut:  decimal.Zero,
		Payable:  decimal.Zero,
	}

	for _, entry := range entries {
		if entry.Kind == EntryReversal {
			reversed[entry.OrderID] = true
			summary.Reversed = summary.Reversed.Add(entry.Amount.Abs())
		}
	}

	for _, entry := range entries {
		if entry.Kind != EntryAccrual || reversed[entry.OrderID] {
			continue
		}
		summary.Earned = summary.Earned.Add(entry.Amount)
		if entry.AvailableAt.After(now) {
			summary.Held = summary.Held.Add(entry.Amount)
		} else {
			summary.Matured = summary.Matured.Add(entry.Amount)
		}
	}

	for _, payout := range payouts {
		summary.PaidOut = summary.PaidOut.Add(payout.Amount)
	}

	summary.Payable = summary.Matured.Sub(summary.PaidOut)
	return summary
}

// PayoutPolicy batches payouts on a fixed interval and rolls balances under
// the threshold forward.
type PayoutPolicy struct {
	Threshold decimal.Decimal
	Interval  time.Duration
}

func (p PayoutPolicy) Due(summary LedgerSummary, lastPayout *time.Time, now time.Time) (decimal.Decimal, bool) {
	if lastPayout != nil && now.Sub(*lastPayout) < p.Interval {
		return decimal.Zero, false
	}
	if summary.Payable.LessThan(p.Threshold) || !summary.Payable.IsPositive() {
		return decimal.Zero, false
	}
	return summary.Payable, true
}
