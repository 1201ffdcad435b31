package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type CouponRepo struct {
	q DBTX
}

const couponColumns = `id, code, discount_type, discount_value, min_purchase_amount, usage_limit, used_count, is_active, created_at`

func (r *CouponRepo) CreateCoupon(ctx context.Context, coupon *domain.Coupon) error {
	query := `INSERT INTO coupons (` + couponColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.ExecContext(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.DiscountType,
		coupon.DiscountValue,
		coupon.MinPurchaseAmount,
		coupon.UsageLimit,
		coupon.UsedCount,
		coupon.IsActive,
		coupon.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ValidationError("coupon code %s already exists", coupon.Code)
		}
		return domain.PersistenceError("coupon creation error", err)
	}
	return nil
}

func (r *CouponRepo) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(r.q.QueryRowContext(ctx, query, domain.NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("coupon not found: %s", domain.NormalizeCouponCode(code))
		}
		return nil, domain.PersistenceError("coupon receive error", err)
	}
	return coupon, nil
}

func (r *CouponRepo) ListCoupons(ctx context.Context) ([]*domain.Coupon, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.PersistenceError("coupons retrieval error", err)
	}
	defer rows.Close()

	var coupons []*domain.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, domain.PersistenceError("coupon scan error", err)
		}
		coupons = append(coupons, coupon)
	}
	return coupons, rows.Err()
}

// RedeemCoupon consumes one use. It reports false when the coupon was
// deactivated or exhausted by a concurrent checkout.
func (r *CouponRepo) RedeemCoupon(ctx context.Context, couponID uuid.UUID) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1 AND is_active AND (usage_limit = 0 OR used_count < usage_limit)
	`
	changed, err := rowsChanged(r.q.ExecContext(ctx, query, couponID))
	if err != nil {
		return false, domain.PersistenceError("coupon redeem error", err)
	}
	return changed, nil
}

// ReleaseCoupon gives back a use taken by a checkout that was compensated.
func (r *CouponRepo) ReleaseCoupon(ctx context.Context, couponID uuid.UUID) error {
	query := `UPDATE coupons SET used_count = used_count - 1 WHERE id = $1 AND used_count > 0`
	if _, err := r.q.ExecContext(ctx, query, couponID); err != nil {
		return domain.PersistenceError("coupon release error", err)
	}
	return nil
}

func (r *CouponRepo) SetCouponActive(ctx context.Context, code string, active bool) error {
	normalized := domain.NormalizeCouponCode(code)
	changed, err := rowsChanged(r.q.ExecContext(ctx, `UPDATE coupons SET is_active = $2 WHERE code = $1`, normalized, active))
	if err != nil {
		return domain.PersistenceError("coupon update error", err)
	}
	if !changed {
		return domain.NotFoundError("coupon not found: %s", normalized)
	}
	return nil
}

func scanCoupon(row rowScanner) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&coupon.MinPurchaseAmount,
		&coupon.UsageLimit,
		&coupon.UsedCount,
		&coupon.IsActive,
		&coupon.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}
