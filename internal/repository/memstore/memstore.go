// Package memstore is an in-process repository.Store. It honours the same
// compare-and-set and uniqueness rules as the Postgres store and backs the
// memory mode and the service and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type state struct {
	orders        map[uuid.UUID]domain.Order
	orderItems    map[uuid.UUID][]domain.OrderItem
	carts         map[uuid.UUID]domain.Cart // by user id
	cartItems     map[uuid.UUID][]domain.CartItem
	products      map[uuid.UUID]domain.Product
	coupons       map[string]domain.Coupon
	affiliates    map[uuid.UUID]domain.Affiliate
	entries       []domain.CommissionEntry
	payouts       []domain.Payout
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		orders:     make(map[uuid.UUID]domain.Order),
		orderItems: make(map[uuid.UUID][]domain.OrderItem),
		carts:      make(map[uuid.UUID]domain.Cart),
		cartItems:  make(map[uuid.UUID][]domain.CartItem),
		products:   make(map[uuid.UUID]domain.Product),
		coupons:    make(map[string]domain.Coupon),
		affiliates: make(map[uuid.UUID]domain.Affiliate),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = append([]domain.OrderItem(nil), v...)
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = append([]domain.CartItem(nil), v...)
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.affiliates {
		c.affiliates[k] = v
	}
	c.entries = append([]domain.CommissionEntry(nil), s.entries...)
	c.payouts = append([]domain.Payout(nil), s.payouts...)
	c.notifications = append([]domain.Notification(nil), s.notifications...)
	return c
}

type shared struct {
	txMu      sync.Mutex // held by a transaction or a single root operation
	mu        sync.Mutex
	data      *state
	calls     int
	writeFail error
	failAfter int
}

// Store implements repository.Store. Transactions are serialised and roll
// back by restoring a snapshot.
type Store struct {
	sh   *shared
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{sh: &shared{data: newState()}}
}

// Calls counts every repository call made against the store.
func (s *Store) Calls() int {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	return s.sh.calls
}

// FailWrites makes every following write fail with err; nil restores
// normal behaviour.
func (s *Store) FailWrites(err error) {
	s.FailWritesAfter(0, err)
}

// FailWritesAfter lets the next n writes through and fails the rest with err.
func (s *Store) FailWritesAfter(n int, err error) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.writeFail = err
	s.sh.failAfter = n
}

// AddProduct seeds the catalog.
func (s *Store) AddProduct(product domain.Product) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.data.products[product.ID] = product
}

func (s *Store) Orders() repository.OrderRepository               { return &orderRepo{s} }
func (s *Store) Carts() repository.CartRepository                 { return &cartRepo{s} }
func (s *Store) Products() repository.ProductRepository           { return &productRepo{s} }
func (s *Store) Coupons() repository.CouponRepository             { return &couponRepo{s} }
func (s *Store) Affiliates() repository.AffiliateRepository       { return &affiliateRepo{s} }
func (s *Store) Commissions() repository.CommissionRepository     { return &commissionRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return domain.PersistenceError("begin transaction", err)
	}

	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.Lock()
	snapshot := s.sh.data.clone()
	s.sh.mu.Unlock()

	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		s.sh.mu.Lock()
		s.sh.data = snapshot
		s.sh.mu.Unlock()
		return err
	}
	return nil
}

// read locks the store for one call and returns the unlock func.
func (s *Store) read() (*state, func()) {
	if !s.inTx {
		s.sh.txMu.Lock()
	}
	s.sh.mu.Lock()
	s.sh.calls++
	return s.sh.data, func() {
		s.sh.mu.Unlock()
		if !s.inTx {
			s.sh.txMu.Unlock()
		}
	}
}

func (s *Store) write(op string) (*state, func(), error) {
	data, unlock := s.read()
	if s.sh.writeFail != nil && s.sh.failAfter > 0 {
		s.sh.failAfter--
	} else if s.sh.writeFail != nil {
		unlock()
		return nil, nil, domain.PersistenceError(op, s.sh.writeFail)
	}
	return data, unlock, nil
}

func sortOrdersNewestFirst(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
