package memstore

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

var (
	errDuplicate  = errors.New("duplicate key")
	errForeignKey = errors.New("foreign key violation")
)

type cartRepo struct{ s *Store }

func (r *cartRepo) GetCartByUserID(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	data, unlock := r.s.read()
	defer unlock()

	cart, ok := data.carts[userID]
	if !ok {
		return nil, domain.NotFoundError("cart not found")
	}
	cart.Items = append([]domain.CartItem(nil), data.cartItems[cart.ID]...)
	return &cart, nil
}

func (r *cartRepo) CreateCart(_ context.Context, cart *domain.Cart) error {
	data, unlock, err := r.s.write("cart creation error")
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := data.carts[cart.UserID]; exists {
		return domain.PersistenceError("cart creation error", errDuplicate)
	}
	stored := *cart
	stored.Items = nil
	data.carts[cart.UserID] = stored
	return nil
}

func (r *cartRepo) GetCartItems(_ context.Context, cartID uuid.UUID) ([]domain.CartItem, error) {
	data, unlock := r.s.read()
	defer unlock()

	return append([]domain.CartItem(nil), data.cartItems[cartID]...), nil
}

func (r *cartRepo) UpsertCartItem(_ context.Context, item domain.CartItem) error {
	data, unlock, err := r.s.write("cart item upsert error")
	if err != nil {
		return err
	}
	defer unlock()

	items := data.cartItems[item.CartID]
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			data.cartItems[item.CartID] = items
			return nil
		}
	}
	data.cartItems[item.CartID] = append(items, item)
	return nil
}

func (r *cartRepo) ClearCart(_ context.Context, cartID uuid.UUID) error {
	data, unlock, err := r.s.write("cart clear error")
	if err != nil {
		return err
	}
	defer unlock()

	delete(data.cartItems, cartID)
	return nil
}

type productRepo struct{ s *Store }

func (r *productRepo) GetProductByID(_ context.Context, productID uuid.UUID) (*domain.Product, error) {
	data, unlock := r.s.read()
	defer unlock()

	product, ok := data.products[productID]
	if !ok {
		return nil, domain.NotFoundError("product not found: %s", productID)
	}
	return &product, nil
}

type couponRepo struct{ s *Store }

func (r *couponRepo) CreateCoupon(_ context.Context, coupon *domain.Coupon) error {
	data, unlock, err := r.s.write("coupon creation error")
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := data.coupons[coupon.Code]; exists {
		return domain.ValidationError("coupon code %s already exists", coupon.Code)
	}
	data.coupons[coupon.Code] = *coupon
	return nil
}

func (r *couponRepo) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	data, unlock := r.s.read()
	defer unlock()

	normalized := domain.NormalizeCouponCode(code)
	coupon, ok := data.coupons[normalized]
	if !ok {
		return nil, domain.NotFoundError("coupon not found: %s", normalized)
	}
	return &coupon, nil
}

func (r *couponRepo) ListCoupons(_ context.Context) ([]*domain.Coupon, error) {
	data, unlock := r.s.read()
	defer unlock()

	coupons := make([]*domain.Coupon, 0, len(data.coupons))
	for _, coupon := range data.coupons {
		c := coupon
		coupons = append(coupons, &c)
	}
	sort.SliceStable(coupons, func(i, j int) bool {
		return coupons[i].CreatedAt.After(coupons[j].CreatedAt)
	})
	return coupons, nil
}

func (r *couponRepo) RedeemCoupon(_ context.Context, couponID uuid.UUID) (bool, error) {
	data, unlock, err := r.s.write("coupon redeem error")
	if err != nil {
		return false, err
	}
	defer unlock()

	for code, coupon := range data.coupons {
		if coupon.ID != couponID {
			continue
		}
		if !coupon.IsActive || (coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit) {
			return false, nil
		}
		coupon.UsedCount++
		data.coupons[code] = coupon
		return true, nil
	}
	return false, nil
}

func (r *couponRepo) ReleaseCoupon(_ context.Context, couponID uuid.UUID) error {
	data, unlock, err := r.s.write("coupon release error")
	if err != nil {
		return err
	}
	defer unlock()

	for code, coupon := range data.coupons {
		if coupon.ID == couponID && coupon.UsedCount > 0 {
			coupon.UsedCount--
			data.coupons[code] = coupon
		}
	}
	return nil
}

func (r *couponRepo) SetCouponActive(_ context.Context, code string, active bool) error {
	data, unlock, err := r.s.write("coupon update error")
	if err != nil {
		return err
	}
	defer unlock()

	normalized := domain.NormalizeCouponCode(code)
	coupon, ok := data.coupons[normalized]
	if !ok {
		return domain.NotFoundError("coupon not found: %s", normalized)
	}
	coupon.IsActive = active
	data.coupons[normalized] = coupon
	return nil
}
