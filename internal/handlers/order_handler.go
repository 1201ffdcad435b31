package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/service"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

type OrderHandler struct {
	orderService        *service.OrderService
	cancellationService *service.CancellationService
}

func NewOrderHandler(orderService *service.OrderService, cancellationService *service.CancellationService) *OrderHandler {
	return &OrderHandler{
		orderService:        orderService,
		cancellationService: cancellationService,
	}
}

// CancelOrder answers {success, refundStatus}. A missing token is 401, a
// foreign order 403, an unknown order 404 and a non-cancellable one 400.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	caller := currentIdentity(c)

	var request CancelOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return cancelError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	orderID, err := uuid.Parse(request.OrderID)
	if err != nil {
		return cancelError(c, fiber.StatusBadRequest, "orderId must be a valid id")
	}

	result, err := h.cancellationService.Cancel(c.UserContext(), orderID, caller.UserID, request.Reason)
	if err != nil {
		return cancelError(c, statusFor(err), publicMessage(err))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":      true,
		"refundStatus": result.RefundStatus,
	})
}

func cancelError(c *fiber.Ctx, status int, message string) error {
	if status == fiber.StatusBadGateway {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": message})
}

func (h *OrderHandler) ListMyOrders(c *fiber.Ctx) error {
	caller := currentIdentity(c)

	orders, err := h.orderService.ListOrdersForUser(c.UserContext(), caller.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return sharedHTTP.SuccessResponse(c, "Orders retrieved successfully", orders)
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderIDStr := c.Params("id")
	orderID, err := uuid.Parse(orderIDStr)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": orderIDStr,
		})
	}

	order, err := h.orderService.GetOrder(c.UserContext(), orderID, currentIdentity(c))
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order retrieved successfully", order)
}
