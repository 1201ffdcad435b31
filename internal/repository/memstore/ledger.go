package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type affiliateRepo struct{ s *Store }

func (r *affiliateRepo) CreateAffiliate(_ context.Context, affiliate *domain.Affiliate) error {
	data, unlock, err := r.s.write("affiliate creation error")
	if err != nil {
		return err
	}
	defer unlock()

	if couponCodeByID(data, affiliate.CouponID) == "" {
		return domain.PersistenceError("affiliate creation error", errForeignKey)
	}
	for _, existing := range data.affiliates {
		if existing.UserID == affiliate.UserID || existing.CouponID == affiliate.CouponID {
			return domain.ValidationError("user or coupon is already linked to an affiliate")
		}
	}
	data.affiliates[affiliate.ID] = *affiliate
	return nil
}

func (r *affiliateRepo) GetAffiliateByID(_ context.Context, affiliateID uuid.UUID) (*domain.Affiliate, error) {
	return r.find(func(a domain.Affiliate, _ string) bool { return a.ID == affiliateID })
}

func (r *affiliateRepo) GetAffiliateByUserID(_ context.Context, userID uuid.UUID) (*domain.Affiliate, error) {
	return r.find(func(a domain.Affiliate, _ string) bool { return a.UserID == userID })
}

func (r *affiliateRepo) GetAffiliateByCouponCode(_ context.Context, code string) (*domain.Affiliate, error) {
	normalized := domain.NormalizeCouponCode(code)
	return r.find(func(_ domain.Affiliate, couponCode string) bool { return couponCode == normalized })
}

func (r *affiliateRepo) UpdateCommissionRate(_ context.Context, affiliateID uuid.UUID, rate decimal.Decimal, now time.Time) error {
	data, unlock, err := r.s.write("commission rate update error")
	if err != nil {
		return err
	}
	defer unlock()

	affiliate, ok := data.affiliates[affiliateID]
	if !ok {
		return domain.NotFoundError("affiliate not found: %s", affiliateID)
	}
	affiliate.CommissionRate = rate
	affiliate.UpdatedAt = now
	data.affiliates[affiliateID] = affiliate
	return nil
}

func (r *affiliateRepo) ListAffiliates(_ context.Context) ([]*domain.Affiliate, error) {
	data, unlock := r.s.read()
	defer unlock()

	affiliates := make([]*domain.Affiliate, 0, len(data.affiliates))
	for _, affiliate := range data.affiliates {
		a := affiliate
		a.CouponCode = couponCodeByID(data, a.CouponID)
		affiliates = append(affiliates, &a)
	}
	sort.SliceStable(affiliates, func(i, j int) bool {
		return affiliates[i].CreatedAt.Before(affiliates[j].CreatedAt)
	})
	return affiliates, nil
}

func (r *affiliateRepo) find(match func(a domain.Affiliate, couponCode string) bool) (*domain.Affiliate, error) {
	data, unlock := r.s.read()
	defer unlock()

	for _, affiliate := range data.affiliates {
		code := couponCodeByID(data, affiliate.CouponID)
		if match(affiliate, code) {
			a := affiliate
			a.CouponCode = code
			return &a, nil
		}
	}
	return nil, domain.NotFoundError("affiliate not found")
}

func couponCodeByID(data *state, couponID uuid.UUID) string {
	for code, coupon := range data.coupons {
		if coupon.ID == couponID {
			return code
		}
	}
	return ""
}

type commissionRepo struct{ s *Store }

func (r *commissionRepo) AppendEntry(_ context.Context, entry *domain.CommissionEntry) (bool, error) {
	data, unlock, err := r.s.write("commission entry append error")
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, existing := range data.entries {
		if existing.OrderID == entry.OrderID && existing.Kind == entry.Kind {
			return false, nil
		}
	}
	data.entries = append(data.entries, *entry)
	return true, nil
}

func (r *commissionRepo) GetEntry(_ context.Context, orderID uuid.UUID, kind domain.EntryKind) (*domain.CommissionEntry, error) {
	data, unlock := r.s.read()
	defer unlock()

	for _, entry := range data.entries {
		if entry.OrderID == orderID && entry.Kind == kind {
			e := entry
			return &e, nil
		}
	}
	return nil, domain.NotFoundError("no %s entry for order %s", kind, orderID)
}

func (r *commissionRepo) ListEntries(_ context.Context, affiliateID uuid.UUID) ([]domain.CommissionEntry, error) {
	data, unlock := r.s.read()
	defer unlock()

	var entries []domain.CommissionEntry
	for _, entry := range data.entries {
		if entry.AffiliateID == affiliateID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (r *commissionRepo) ListUnreversedVoidAccruals(_ context.Context) ([]domain.CommissionEntry, error) {
	data, unlock := r.s.read()
	defer unlock()

	reversed := make(map[uuid.UUID]bool)
	for _, entry := range data.entries {
		if entry.Kind == domain.EntryReversal {
			reversed[entry.OrderID] = true
		}
	}

	var entries []domain.CommissionEntry
	for _, entry := range data.entries {
		if entry.Kind != domain.EntryAccrual || reversed[entry.OrderID] {
			continue
		}
		order, ok := data.orders[entry.OrderID]
		if !ok {
			continue
		}
		if order.Status == domain.OrderStatusCancelled || order.PaymentStatus == domain.PaymentStatusRefunded {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (r *commissionRepo) AppendPayout(_ context.Context, payout *domain.Payout) error {
	data, unlock, err := r.s.write("payout append error")
	if err != nil {
		return err
	}
	defer unlock()

	data.payouts = append(data.payouts, *payout)
	return nil
}

func (r *commissionRepo) ListPayouts(_ context.Context, affiliateID uuid.UUID) ([]domain.Payout, error) {
	data, unlock := r.s.read()
	defer unlock()

	var payouts []domain.Payout
	for _, payout := range data.payouts {
		if payout.AffiliateID == affiliateID {
			payouts = append(payouts, payout)
		}
	}
	return payouts, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) CreateNotification(_ context.Context, notification *domain.Notification) error {
	data, unlock, err := r.s.write("notification creation error")
	if err != nil {
		return err
	}
	defer unlock()

	data.notifications = append(data.notifications, *notification)
	return nil
}

func (r *notificationRepo) UpdateNotification(_ context.Context, notification *domain.Notification) error {
	data, unlock, err := r.s.write("notification update error")
	if err != nil {
		return err
	}
	defer unlock()

	for i := range data.notifications {
		if data.notifications[i].ID == notification.ID {
			data.notifications[i].Status = notification.Status
			data.notifications[i].SentAt = notification.SentAt
			return nil
		}
	}
	return nil
}

func (r *notificationRepo) GetNotificationsByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.Notification, error) {
	data, unlock := r.s.read()
	defer unlock()

	var notifications []*domain.Notification
	for _, notification := range data.notifications {
		if notification.OrderID == orderID {
			n := notification
			notifications = append(notifications, &n)
		}
	}
	return notifications, nil
}
