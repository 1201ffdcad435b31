package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

func (s *ServiceTestSuite) TestRegisterAffiliateCreatesCoupon() {
	userID := uuid.New()
	affiliate, err := s.affiliates.RegisterAffiliate(s.ctx, RegisterAffiliateRequest{
		UserID:     userID,
		CouponCode: "yoga-ana",
		PayoutInfo: json.RawMessage(`{"upi":"ana@bank"}`),
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), "YOGA-ANA", affiliate.CouponCode)
	require.True(s.T(), domain.DefaultCommissionRate.Equal(affiliate.CommissionRate))

	coupon, err := s.store.Coupons().GetCouponByCode(s.ctx, "YOGA-ANA")
	require.NoError(s.T(), err)
	require.Equal(s.T(), domain.DiscountPercentage, coupon.DiscountType)
	require.True(s.T(), decimal.NewFromInt(10).Equal(coupon.DiscountValue))

	ledger, err := s.affiliates.LedgerForUser(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), affiliate.ID, ledger.Affiliate.ID)
	require.True(s.T(), ledger.Summary.Payable.IsZero())
}

func (s *ServiceTestSuite) TestRegisterAffiliateRefusals() {
	tooHigh := decimal.NewFromInt(150)
	_, err := s.affiliates.RegisterAffiliate(s.ctx, RegisterAffiliateRequest{UserID: uuid.New(), CouponCode: "GREEDY", CommissionRate: &tooHigh})
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	existing := s.registerAffiliate("TAKEN", 5)
	_, err = s.affiliates.RegisterAffiliate(s.ctx, RegisterAffiliateRequest{UserID: uuid.New(), CouponCode: "taken"})
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	_, err = s.affiliates.RegisterAffiliate(s.ctx, RegisterAffiliateRequest{UserID: existing.UserID, CouponCode: "SECOND"})
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	_, err = s.store.Coupons().GetCouponByCode(s.ctx, "SECOND")
	require.True(s.T(), errors.Is(err, domain.ErrNotFound), "the coupon is rolled back with the affiliate")
}

func (s *ServiceTestSuite) TestSetCommissionRate() {
	affiliate := s.registerAffiliate("RATE", 5)

	updated, err := s.affiliates.SetCommissionRate(s.ctx, affiliate.ID, decimal.NewFromInt(12))
	require.NoError(s.T(), err)
	require.Equal(s.T(), "12", updated.CommissionRate.String())

	_, err = s.affiliates.SetCommissionRate(s.ctx, affiliate.ID, decimal.NewFromInt(-3))
	require.True(s.T(), errors.Is(err, domain.ErrValidation))
	require.Equal(s.T(), "12", s.ledger(affiliate.ID).Affiliate.CommissionRate.String())

	_, err = s.affiliates.SetCommissionRate(s.ctx, uuid.New(), decimal.NewFromInt(1))
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}

func (s *ServiceTestSuite) TestRateChangeDoesNotRewriteAccruals() {
	affiliate := s.registerAffiliate("STABLE", 5)
	s.paidOrder(uuid.New(), 1000, "STABLE")

	_, err := s.affiliates.SetCommissionRate(s.ctx, affiliate.ID, decimal.NewFromInt(20))
	require.NoError(s.T(), err)
	s.paidOrder(uuid.New(), 1000, "STABLE")

	ledger := s.ledger(affiliate.ID)
	require.Len(s.T(), ledger.Entries, 2)
	require.Equal(s.T(), "250.00", ledger.Summary.Earned.StringFixed(2))
}

func (s *ServiceTestSuite) TestSelfReferralEarnsNothing() {
	affiliate := s.registerAffiliate("MYSELF", 5)
	s.paidOrder(affiliate.UserID, 1000, "MYSELF")

	require.Empty(s.T(), s.ledger(affiliate.ID).Entries)
}

func (s *ServiceTestSuite) TestCommissionMaturesAfterHoldingPeriod() {
	affiliate := s.registerAffiliate("HOLD", 5)
	s.paidOrder(uuid.New(), 1000, "HOLD")

	summary := s.ledger(affiliate.ID).Summary
	require.Equal(s.T(), "50.00", summary.Held.StringFixed(2))
	require.True(s.T(), summary.Matured.IsZero())

	s.advance(14 * 24 * time.Hour)
	summary = s.ledger(affiliate.ID).Summary
	require.True(s.T(), summary.Held.IsZero())
	require.Equal(s.T(), "50.00", summary.Payable.StringFixed(2))
}

func (s *ServiceTestSuite) TestRunPayouts() {
	big := s.registerAffiliate("BIG", 50)
	small := s.registerAffiliate("SMALL", 5)
	s.paidOrder(uuid.New(), 1080, "BIG")
	s.paidOrder(uuid.New(), 1080, "SMALL")

	payouts, err := s.affiliates.RunPayouts(s.ctx)
	require.NoError(s.T(), err)
	require.Empty(s.T(), payouts, "held commission is not payable")

	s.advance(15 * 24 * time.Hour)
	payouts, err = s.affiliates.RunPayouts(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), payouts, 1, "balances under the threshold roll forward")
	require.Equal(s.T(), big.ID, payouts[0].AffiliateID)
	require.Equal(s.T(), "540.00", payouts[0].Amount.StringFixed(2))

	s.paidOrder(uuid.New(), 1080, "BIG")
	s.advance(15 * 24 * time.Hour)
	payouts, err = s.affiliates.RunPayouts(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), payouts, 1)
	require.Equal(s.T(), "540.00", payouts[0].Amount.StringFixed(2))

	payouts, err = s.affiliates.RunPayouts(s.ctx)
	require.NoError(s.T(), err)
	require.Empty(s.T(), payouts, "one payout per interval")

	require.Equal(s.T(), "54.00", s.ledger(small.ID).Summary.Payable.StringFixed(2))
	require.Equal(s.T(), "1080.00", s.ledger(big.ID).Summary.PaidOut.StringFixed(2))
}

func (s *ServiceTestSuite) TestReversalAfterPayoutLeavesNegativeBalance() {
	affiliate := s.registerAffiliate("CLAWBACK", 50)
	order := s.paidOrder(uuid.New(), 1080, "CLAWBACK")

	s.advance(15 * 24 * time.Hour)
	payouts, err := s.affiliates.RunPayouts(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), payouts, 1)

	_, err = s.orders.MarkRefunded(s.ctx, order.ID)
	require.NoError(s.T(), err)

	summary := s.ledger(affiliate.ID).Summary
	require.Equal(s.T(), "-540.00", summary.Payable.StringFixed(2))
	require.Equal(s.T(), "540.00", summary.PaidOut.StringFixed(2))
}
