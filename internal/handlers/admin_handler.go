package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/repository"
	"github.com/wellness-storefront/order-ledger/internal/service"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

type AdminHandler struct {
	orderService *service.OrderService
}

func NewAdminHandler(orderService *service.OrderService) *AdminHandler {
	return &AdminHandler{orderService: orderService}
}

func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	filter := repository.OrderFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return respondError(c, domain.ValidationError("limit and offset must not be negative"))
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return respondError(c, err)
		}
		filter.Status = status
	}

	orders, err := h.orderService.ListOrders(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return sharedHTTP.SuccessResponse(c, "Orders retrieved successfully", orders)
}

func (h *AdminHandler) AdvanceStatus(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": c.Params("id"),
		})
	}

	var request AdvanceStatusRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", nil)
	}
	next, err := domain.ParseOrderStatus(request.Status)
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orderService.AdvanceStatus(c.UserContext(), orderID, next)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order status updated successfully", order)
}

func (h *AdminHandler) MarkRefunded(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"order_id": c.Params("id"),
		})
	}

	order, err := h.orderService.MarkRefunded(c.UserContext(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Refund recorded successfully", order)
}

func (h *AdminHandler) CreateCoupon(c *fiber.Ctx) error {
	var request CreateCouponRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	coupon, err := h.orderService.CreateCoupon(c.UserContext(), service.CreateCouponRequest{
		Code:              request.Code,
		DiscountType:      domain.DiscountType(request.DiscountType),
		DiscountValue:     request.DiscountValue,
		MinPurchaseAmount: request.MinPurchaseAmount,
		UsageLimit:        request.UsageLimit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.CreatedResponse(c, "Coupon created successfully", coupon)
}

func (h *AdminHandler) ListCoupons(c *fiber.Ctx) error {
	coupons, err := h.orderService.ListCoupons(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if coupons == nil {
		coupons = []*domain.Coupon{}
	}
	return sharedHTTP.SuccessResponse(c, "Coupons retrieved successfully", coupons)
}

func (h *AdminHandler) SetCouponActive(c *fiber.Ctx) error {
	var request SetCouponActiveRequest
	if err := c.BodyParser(&request); err != nil || request.IsActive == nil {
		return sharedHTTP.BadRequestResponse(c, "is_active is required", nil)
	}

	coupon, err := h.orderService.SetCouponActive(c.UserContext(), c.Params("code"), *request.IsActive)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Coupon updated successfully", coupon)
}
