package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

func (s *ServiceTestSuite) TestGetCartWithoutCart() {
	userID := uuid.New()
	cart, err := s.carts.GetCart(s.ctx, userID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), userID, cart.UserID)
	require.Empty(s.T(), cart.Items)
}

func (s *ServiceTestSuite) TestAddItemMergesQuantities() {
	userID := uuid.New()
	product := s.product(40)

	_, err := s.carts.AddItem(s.ctx, userID, product.ID, 1)
	require.NoError(s.T(), err)
	cart, err := s.carts.AddItem(s.ctx, userID, product.ID, 2)
	require.NoError(s.T(), err)

	require.Len(s.T(), cart.Items, 1)
	require.Equal(s.T(), 3, cart.Items[0].Quantity)
	require.True(s.T(), decimal.NewFromInt(120).Equal(domain.Subtotal(cart.Items)))
}

func (s *ServiceTestSuite) TestAddItemRefusals() {
	userID := uuid.New()
	product := s.product(40)
	retired := domain.Product{ID: uuid.New(), Name: "Old blend", Price: decimal.NewFromInt(10)}
	s.store.AddProduct(retired)

	_, err := s.carts.AddItem(s.ctx, userID, product.ID, 0)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	_, err = s.carts.AddItem(s.ctx, userID, retired.ID, 1)
	require.True(s.T(), errors.Is(err, domain.ErrValidation))

	_, err = s.carts.AddItem(s.ctx, userID, uuid.New(), 1)
	require.True(s.T(), errors.Is(err, domain.ErrNotFound))
}
