package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type AffiliateRepo struct {
	q DBTX
}

const affiliateSelect = `
	SELECT a.id, a.user_id, a.coupon_id, c.code, a.commission_rate,
	       a.payout_info, a.created_at, a.updated_at
	FROM affiliates a
	JOIN coupons c ON c.id = a.coupon_id`

func (r *AffiliateRepo) CreateAffiliate(ctx context.Context, affiliate *domain.Affiliate) error {
	query := `
		INSERT INTO affiliates (id, user_id, coupon_id, commission_rate, payout_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var payoutInfo interface{}
	if len(affiliate.PayoutInfo) > 0 {
		payoutInfo = []byte(affiliate.PayoutInfo)
	}

	_, err := r.q.ExecContext(ctx, query,
		affiliate.ID,
		affiliate.UserID,
		affiliate.CouponID,
		affiliate.CommissionRate,
		payoutInfo,
		affiliate.CreatedAt,
		affiliate.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ValidationError("user or coupon is already linked to an affiliate")
		}
		return domain.PersistenceError("affiliate creation error", err)
	}
	return nil
}

func (r *AffiliateRepo) GetAffiliateByID(ctx context.Context, affiliateID uuid.UUID) (*domain.Affiliate, error) {
	return r.getOne(ctx, affiliateSelect+` WHERE a.id = $1`, affiliateID)
}

func (r *AffiliateRepo) GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (*domain.Affiliate, error) {
	return r.getOne(ctx, affiliateSelect+` WHERE a.user_id = $1`, userID)
}

func (r *AffiliateRepo) GetAffiliateByCouponCode(ctx context.Context, code string) (*domain.Affiliate, error) {
	return r.getOne(ctx, affiliateSelect+` WHERE c.code = $1`, domain.NormalizeCouponCode(code))
}

func (r *AffiliateRepo) UpdateCommissionRate(ctx context.Context, affiliateID uuid.UUID, rate decimal.Decimal, now time.Time) error {
	query := `UPDATE affiliates SET commission_rate = $2, updated_at = $3 WHERE id = $1`

	changed, err := rowsChanged(r.q.ExecContext(ctx, query, affiliateID, rate, now))
	if err != nil {
		return domain.PersistenceError("commission rate update error", err)
	}
	if !changed {
		return domain.NotFoundError("affiliate not found: %s", affiliateID)
	}
	return nil
}

func (r *AffiliateRepo) ListAffiliates(ctx context.Context) ([]*domain.Affiliate, error) {
	rows, err := r.q.QueryContext(ctx, affiliateSelect+` ORDER BY a.created_at`)
	if err != nil {
		return nil, domain.PersistenceError("affiliates retrieval error", err)
	}
	defer rows.Close()

	var affiliates []*domain.Affiliate
	for rows.Next() {
		affiliate, err := scanAffiliate(rows)
		if err != nil {
			return nil, domain.PersistenceError("affiliate scan error", err)
		}
		affiliates = append(affiliates, affiliate)
	}
	return affiliates, rows.Err()
}

func (r *AffiliateRepo) getOne(ctx context.Context, query string, arg interface{}) (*domain.Affiliate, error) {
	affiliate, err := scanAffiliate(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("affiliate not found")
		}
		return nil, domain.PersistenceError("affiliate receive error", err)
	}
	return affiliate, nil
}

func scanAffiliate(row rowScanner) (*domain.Affiliate, error) {
	var (
		affiliate  domain.Affiliate
		payoutInfo []byte
	)
	err := row.Scan(
		&affiliate.ID,
		&affiliate.UserID,
		&affiliate.CouponID,
		&affiliate.CouponCode,
		&affiliate.CommissionRate,
		&payoutInfo,
		&affiliate.CreatedAt,
		&affiliate.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payoutInfo) > 0 {
		affiliate.PayoutInfo = payoutInfo
	}
	return &affiliate, nil
}
