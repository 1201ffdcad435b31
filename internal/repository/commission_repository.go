package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// CommissionRepo only ever inserts. The ledger has no UPDATE or DELETE path.
type CommissionRepo struct {
	q DBTX
}

const entryColumns = `id, affiliate_id, order_id, kind, net_sales, rate, amount, available_at, created_at`

func (r *CommissionRepo) AppendEntry(ctx context.Context, entry *domain.CommissionEntry) (bool, error) {
	query := `
		INSERT INTO commission_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id, kind) DO NOTHING
	`

	changed, err := rowsChanged(r.q.ExecContext(ctx, query,
		entry.ID,
		entry.AffiliateID,
		entry.OrderID,
		entry.Kind,
		entry.NetSales,
		entry.Rate,
		entry.Amount,
		entry.AvailableAt,
		entry.CreatedAt,
	))
	if err != nil {
		return false, domain.PersistenceError("commission entry append error", err)
	}
	return changed, nil
}

func (r *CommissionRepo) GetEntry(ctx context.Context, orderID uuid.UUID, kind domain.EntryKind) (*domain.CommissionEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM commission_entries WHERE order_id = $1 AND kind = $2`

	entry, err := scanEntry(r.q.QueryRowContext(ctx, query, orderID, kind))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("no %s entry for order %s", kind, orderID)
		}
		return nil, domain.PersistenceError("commission entry receive error", err)
	}
	return entry, nil
}

func (r *CommissionRepo) ListEntries(ctx context.Context, affiliateID uuid.UUID) ([]domain.CommissionEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM commission_entries WHERE affiliate_id = $1 ORDER BY created_at`
	return r.queryEntries(ctx, query, affiliateID)
}

// ListUnreversedVoidAccruals finds accruals whose order was cancelled or
// refunded after the commission was booked and that carry no reversal yet.
func (r *CommissionRepo) ListUnreversedVoidAccruals(ctx context.Context) ([]domain.CommissionEntry, error) {
	query := `
		SELECT e.id, e.affiliate_id, e.order_id, e.kind, e.net_sales, e.rate, e.amount, e.available_at, e.created_at
		FROM commission_entries e
		JOIN orders o ON o.id = e.order_id
		WHERE e.kind = 'accrual'
		  AND (o.status = 'cancelled' OR o.payment_status = 'refunded')
		  AND NOT EXISTS (
		      SELECT 1 FROM commission_entries r
		      WHERE r.order_id = e.order_id AND r.kind = 'reversal'
		  )
		ORDER BY e.created_at
	`
	return r.queryEntries(ctx, query)
}

func (r *CommissionRepo) AppendPayout(ctx context.Context, payout *domain.Payout) error {
	query := `
		INSERT INTO affiliate_payouts (id, affiliate_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.q.ExecContext(ctx, query, payout.ID, payout.AffiliateID, payout.Amount, payout.CreatedAt); err != nil {
		return domain.PersistenceError("payout append error", err)
	}
	return nil
}

func (r *CommissionRepo) ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]domain.Payout, error) {
	query := `
		SELECT id, affiliate_id, amount, created_at
		FROM affiliate_payouts
		WHERE affiliate_id = $1
		ORDER BY created_at
	`

	rows, err := r.q.QueryContext(ctx, query, affiliateID)
	if err != nil {
		return nil, domain.PersistenceError("payouts retrieval error", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		var payout domain.Payout
		if err := rows.Scan(&payout.ID, &payout.AffiliateID, &payout.Amount, &payout.CreatedAt); err != nil {
			return nil, domain.PersistenceError("payout scan error", err)
		}
		payouts = append(payouts, payout)
	}
	return payouts, rows.Err()
}

func (r *CommissionRepo) queryEntries(ctx context.Context, query string, args ...interface{}) ([]domain.CommissionEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError("commission entries retrieval error", err)
	}
	defer rows.Close()

	var entries []domain.CommissionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, domain.PersistenceError("commission entry scan error", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*domain.CommissionEntry, error) {
	var entry domain.CommissionEntry
	err := row.Scan(
		&entry.ID,
		&entry.AffiliateID,
		&entry.OrderID,
		&entry.Kind,
		&entry.NetSales,
		&entry.Rate,
		&entry.Amount,
		&entry.AvailableAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
