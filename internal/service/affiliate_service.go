package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type AffiliateService struct {
	store          repository.Store
	holding        time.Duration
	policy         domain.PayoutPolicy
	couponDiscount decimal.Decimal
	now            Clock
	logger         zerolog.Logger
}

type AffiliateConfig struct {
	HoldingPeriod  time.Duration
	Payouts        domain.PayoutPolicy
	CouponDiscount decimal.Decimal
}

func NewAffiliateService(store repository.Store, cfg AffiliateConfig, clock Clock, logger zerolog.Logger) *AffiliateService {
	return &AffiliateService{
		store:          store,
		holding:        cfg.HoldingPeriod,
		policy:         cfg.Payouts,
		couponDiscount: cfg.CouponDiscount,
		now:            orDefault(clock),
		logger:         logger.With().Str("component", "affiliate_ledger").Logger(),
	}
}

type RegisterAffiliateRequest struct {
	UserID         uuid.UUID
	CouponCode     string
	CommissionRate *decimal.Decimal
	PayoutInfo     json.RawMessage
}

// AffiliateLedger is an affiliate with its balances and the facts they are
// computed from.
type AffiliateLedger struct {
	Affiliate *domain.Affiliate        `json:"affiliate"`
	Summary   domain.LedgerSummary     `json:"summary"`
	Entries   []domain.CommissionEntry `json:"entries"`
	Payouts   []domain.Payout          `json:"payouts"`
}

// RegisterAffiliate creates the affiliate's percentage coupon and the
// affiliate record together.
func (s *AffiliateService) RegisterAffiliate(ctx context.Context, req RegisterAffiliateRequest) (*domain.Affiliate, error) {
	rate := domain.DefaultCommissionRate
	if req.CommissionRate != nil {
		rate = *req.CommissionRate
	}
	now := s.now()

	coupon, err := domain.NewCoupon(req.CouponCode, domain.DiscountPercentage, s.couponDiscount, decimal.Zero, 0, now)
	if err != nil {
		return nil, err
	}
	affiliate, err := domain.NewAffiliate(req.UserID, coupon, rate, req.PayoutInfo, now)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Coupons().CreateCoupon(ctx, coupon); err != nil {
			return err
		}
		return tx.Affiliates().CreateAffiliate(ctx, affiliate)
	})
	if err != nil {
		logFailure(s.logger, err, "affiliate registration failed")
		return nil, err
	}

	s.logger.Info().
		Str("affiliate_id", affiliate.ID.String()).
		Str("coupon_code", affiliate.CouponCode).
		Msg("affiliate registered")
	return affiliate, nil
}

func (s *AffiliateService) SetCommissionRate(ctx context.Context, affiliateID uuid.UUID, rate decimal.Decimal) (*domain.Affiliate, error) {
	affiliate, err := s.store.Affiliates().GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if err := affiliate.SetCommissionRate(rate, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Affiliates().UpdateCommissionRate(ctx, affiliateID, affiliate.CommissionRate, affiliate.UpdatedAt); err != nil {
		logFailure(s.logger, err, "commission rate update failed")
		return nil, err
	}
	return affiliate, nil
}

// AccrueForOrder appends the order's accrual inside the caller's
// transaction. Orders without an affiliate coupon are skipped, and a second
// accrual for the same order is ignored by the store.
func (s *AffiliateService) AccrueForOrder(ctx context.Context, tx repository.Store, order *domain.Order) error {
	if order.CouponCode == "" {
		return nil
	}
	affiliate, err := tx.Affiliates().GetAffiliateByCouponCode(ctx, order.CouponCode)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	entry, skip := domain.NewAccrual(order, affiliate, s.now(), s.holding)
	if skip != domain.SkipNone {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("affiliate_id", affiliate.ID.String()).
			Str("reason", string(skip)).
			Msg("commission not accrued")
		return nil
	}

	appended, err := tx.Commissions().AppendEntry(ctx, entry)
	if err != nil {
		return err
	}
	if appended {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("affiliate_id", affiliate.ID.String()).
			Str("amount", entry.Amount.StringFixed(2)).
			Time("available_at", entry.AvailableAt).
			Msg("commission accrued")
	}
	return nil
}

// ReverseForOrder appends a reversal for the order's accrual, if any.
func (s *AffiliateService) ReverseForOrder(ctx context.Context, tx repository.Store, orderID uuid.UUID) error {
	accrual, err := tx.Commissions().GetEntry(ctx, orderID, domain.EntryAccrual)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	reversal := domain.NewReversal(accrual, s.now())
	appended, err := tx.Commissions().AppendEntry(ctx, reversal)
	if err != nil {
		return err
	}
	if appended {
		s.logger.Info().
			Str("order_id", orderID.String()).
			Str("affiliate_id", accrual.AffiliateID.String()).
			Str("amount", reversal.Amount.StringFixed(2)).
			Msg("commission reversed")
	}
	return nil
}

func (s *AffiliateService) Ledger(ctx context.Context, affiliateID uuid.UUID) (*AffiliateLedger, error) {
	affiliate, err := s.store.Affiliates().GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	return s.ledgerFor(ctx, s.store, affiliate)
}

func (s *AffiliateService) LedgerForUser(ctx context.Context, userID uuid.UUID) (*AffiliateLedger, error) {
	affiliate, err := s.store.Affiliates().GetAffiliateByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledgerFor(ctx, s.store, affiliate)
}

func (s *AffiliateService) ledgerFor(ctx context.Context, store repository.Store, affiliate *domain.Affiliate) (*AffiliateLedger, error) {
	entries, err := store.Commissions().ListEntries(ctx, affiliate.ID)
	if err != nil {
		return nil, err
	}
	payouts, err := store.Commissions().ListPayouts(ctx, affiliate.ID)
	if err != nil {
		return nil, err
	}
	return &AffiliateLedger{
		Affiliate: affiliate,
		Summary:   domain.Summarize(entries, payouts, s.now()),
		Entries:   entries,
		Payouts:   payouts,
	}, nil
}

// RunPayouts records a payout for every affiliate whose matured balance
// reached the threshold and whose last payout is older than the interval.
// One affiliate failing does not stop the batch.
func (s *AffiliateService) RunPayouts(ctx context.Context) ([]domain.Payout, error) {
	affiliates, err := s.store.Affiliates().ListAffiliates(ctx)
	if err != nil {
		return nil, err
	}

	var paid []domain.Payout
	for _, affiliate := range affiliates {
		payout, err := s.payoutFor(ctx, affiliate)
		if err != nil {
			s.logger.Error().Err(err).Str("affiliate_id", affiliate.ID.String()).Msg("payout failed")
			continue
		}
		if payout != nil {
			paid = append(paid, *payout)
		}
	}

	s.logger.Info().Int("affiliates", len(affiliates)).Int("payouts", len(paid)).Msg("payout batch finished")
	return paid, nil
}

func (s *AffiliateService) payoutFor(ctx context.Context, affiliate *domain.Affiliate) (*domain.Payout, error) {
	var payout *domain.Payout
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		ledger, err := s.ledgerFor(ctx, tx, affiliate)
		if err != nil {
			return err
		}

		now := s.now()
		amount, due := s.policy.Due(ledger.Summary, lastPayoutAt(ledger.Payouts), now)
		if !due {
			s.logger.Debug().
				Str("affiliate_id", affiliate.ID.String()).
				Str("payable", ledger.Summary.Payable.StringFixed(2)).
				Msg("payout rolled forward")
			return nil
		}

		payout = &domain.Payout{
			ID:          uuid.New(),
			AffiliateID: affiliate.ID,
			Amount:      amount,
			CreatedAt:   now,
		}
		return tx.Commissions().AppendPayout(ctx, payout)
	})
	if err != nil {
		return nil, err
	}
	if payout != nil {
		s.logger.Info().
			Str("affiliate_id", affiliate.ID.String()).
			Str("amount", payout.Amount.StringFixed(2)).
			Msg("payout recorded")
	}
	return payout, nil
}

func lastPayoutAt(payouts []domain.Payout) *time.Time {
	var last *time.Time
	for i := range payouts {
		if last == nil || payouts[i].CreatedAt.After(*last) {
			last = &payouts[i].CreatedAt
		}
	}
	return last
}
