package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/service"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

type CartHandler struct {
	cartService *service.CartService
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	cart, err := h.cartService.GetCart(c.UserContext(), currentIdentity(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Cart retrieved successfully", mapCart(cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var request AddCartItemRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}
	productID, err := uuid.Parse(request.ProductID)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid product ID", map[string]interface{}{
			"product_id": request.ProductID,
		})
	}

	cart, err := h.cartService.AddItem(c.UserContext(), currentIdentity(c).UserID, productID, request.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Item added to cart", mapCart(cart))
}
