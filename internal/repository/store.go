package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// Store groups the repositories of the ledger store. WithTx runs fn against
// a Store bound to one transaction; nested calls join the outer one.
type Store interface {
	Orders() OrderRepository
	Carts() CartRepository
	Products() ProductRepository
	Coupons() CouponRepository
	Affiliates() AffiliateRepository
	Commissions() CommissionRepository
	Notifications() NotificationRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

type OrderFilter struct {
	Status domain.OrderStatus
	Limit  int
	Offset int
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	AddOrderItems(ctx context.Context, items []domain.OrderItem) error
	GetOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Order, error)
	SetPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string, now time.Time) error

	// Compare-and-set transitions. The bool reports whether a row changed.
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to domain.PaymentStatus, now time.Time) (bool, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error)
	FailCheckout(ctx context.Context, orderID uuid.UUID, reason string, now time.Time) (bool, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, now time.Time) (bool, error)
}

type CartRepository interface {
	// GetCartByUserID locks the cart row when called inside a transaction.
	GetCartByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart *domain.Cart) error
	GetCartItems(ctx context.Context, cartID uuid.UUID) ([]domain.CartItem, error)
	UpsertCartItem(ctx context.Context, item domain.CartItem) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

type ProductRepository interface {
	GetProductByID(ctx context.Context, productID uuid.UUID) (*domain.Product, error)
}

type CouponRepository interface {
	CreateCoupon(ctx context.Context, coupon *domain.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListCoupons(ctx context.Context) ([]*domain.Coupon, error)
	RedeemCoupon(ctx context.Context, couponID uuid.UUID) (bool, error)
	ReleaseCoupon(ctx context.Context, couponID uuid.UUID) error
	SetCouponActive(ctx context.Context, code string, active bool) error
}

type AffiliateRepository interface {
	CreateAffiliate(ctx context.Context, affiliate *domain.Affiliate) error
	GetAffiliateByID(ctx context.Context, affiliateID uuid.UUID) (*domain.Affiliate, error)
	GetAffiliateByUserID(ctx context.Context, userID uuid.UUID) (*domain.Affiliate, error)
	GetAffiliateByCouponCode(ctx context.Context, code string) (*domain.Affiliate, error)
	UpdateCommissionRate(ctx context.Context, affiliateID uuid.UUID, rate decimal.Decimal, now time.Time) error
	ListAffiliates(ctx context.Context) ([]*domain.Affiliate, error)
}

type CommissionRepository interface {
	// AppendEntry is insert-only; a second entry of the same kind for the
	// same order is ignored and reported as false.
	AppendEntry(ctx context.Context, entry *domain.CommissionEntry) (bool, error)
	GetEntry(ctx context.Context, orderID uuid.UUID, kind domain.EntryKind) (*domain.CommissionEntry, error)
	ListEntries(ctx context.Context, affiliateID uuid.UUID) ([]domain.CommissionEntry, error)
	ListUnreversedVoidAccruals(ctx context.Context) ([]domain.CommissionEntry, error)
	AppendPayout(ctx context.Context, payout *domain.Payout) error
	ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]domain.Payout, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification *domain.Notification) error
	UpdateNotification(ctx context.Context, notification *domain.Notification) error
	GetNotificationsByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Notification, error)
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PostgresStore struct {
	db   *sql.DB
	q    DBTX
	inTx bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Orders() OrderRepository               { return &OrderRepo{q: s.q} }
func (s *PostgresStore) Carts() CartRepository                 { return &CartRepo{q: s.q, lock: s.inTx} }
func (s *PostgresStore) Products() ProductRepository           { return &ProductRepo{q: s.q} }
func (s *PostgresStore) Coupons() CouponRepository             { return &CouponRepo{q: s.q} }
func (s *PostgresStore) Affiliates() AffiliateRepository       { return &AffiliateRepo{q: s.q} }
func (s *PostgresStore) Commissions() CommissionRepository     { return &CommissionRepo{q: s.q} }
func (s *PostgresStore) Notifications() NotificationRepository { return &NotificationRepo{q: s.q} }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PersistenceError("begin transaction", err)
	}

	if err := fn(&PostgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return domain.PersistenceError("rollback after "+err.Error(), rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.PersistenceError("commit transaction", err)
	}
	return nil
}

// rowsChanged turns an Exec result into the compare-and-set outcome.
func rowsChanged(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
