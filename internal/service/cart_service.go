package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type CartService struct {
	store  repository.Store
	now    Clock
	logger zerolog.Logger
}

func NewCartService(store repository.Store, clock Clock, logger zerolog.Logger) *CartService {
	return &CartService{
		store:  store,
		now:    orDefault(clock),
		logger: logger.With().Str("component", "cart").Logger(),
	}
}

// GetCart returns the user's cart, or an empty one if they never had one.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.store.Carts().GetCartByUserID(ctx, userID)
	if isNotFound(err) {
		return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	return cart, err
}

// AddItem adds quantity of a product at its current price. Adding a product
// already in the cart increases its quantity.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.ValidationError("quantity must be at least 1")
	}
	product, err := s.store.Products().GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, domain.ValidationError("product %s is not available", product.Name)
	}

	var cart *domain.Cart
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		cart, err = tx.Carts().GetCartByUserID(ctx, userID)
		if isNotFound(err) {
			cart = domain.NewCart(userID, s.now())
			err = tx.Carts().CreateCart(ctx, cart)
		}
		if err != nil {
			return err
		}

		item := domain.CartItem{
			ID:         uuid.New(),
			CartID:     cart.ID,
			ProductID:  product.ID,
			Quantity:   quantity,
			PriceAtAdd: product.Price,
		}
		if err := tx.Carts().UpsertCartItem(ctx, item); err != nil {
			return err
		}
		cart.Items, err = tx.Carts().GetCartItems(ctx, cart.ID)
		return err
	})
	if err != nil {
		logFailure(s.logger, err, "cart update failed")
		return nil, err
	}
	return cart, nil
}
