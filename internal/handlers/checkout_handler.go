package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/service"
)

const idempotencyHeader = "Idempotency-Key"

type CheckoutHandler struct {
	checkoutService *service.CheckoutService
	logger          zerolog.Logger
}

func NewCheckoutHandler(checkoutService *service.CheckoutService, logger zerolog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		logger:          logger,
	}
}

// Checkout answers {paymentSessionId, orderId}, or {error} with 400 for bad
// input, 404 for a missing cart and 500 for everything else.
func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	var request CheckoutRequest
	if err := c.BodyParser(&request); err != nil {
		return flatError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return flatError(c, fiber.StatusBadRequest, "userId must be a valid id")
	}

	result, err := h.checkoutService.Checkout(c.UserContext(), service.CheckoutRequest{
		UserID:          userID,
		Amount:          request.Amount,
		CustomerPhone:   request.CustomerPhone,
		CustomerEmail:   request.CustomerEmail,
		CustomerName:    request.CustomerName,
		ShippingAddress: request.ShippingAddress,
		PaymentMethod:   request.PaymentMethod,
		CouponCode:      request.CouponCode,
		IdempotencyKey:  c.Get(idempotencyHeader),
	})
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindValidation:
			return flatError(c, fiber.StatusBadRequest, publicMessage(err))
		case domain.KindNotFound:
			return flatError(c, fiber.StatusNotFound, publicMessage(err))
		default:
			h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("checkout request failed")
			return flatError(c, fiber.StatusInternalServerError, publicMessage(err))
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"paymentSessionId": result.PaymentSessionID,
		"orderId":          result.OrderID,
	})
}
