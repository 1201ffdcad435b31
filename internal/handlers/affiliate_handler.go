package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/service"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

type AffiliateHandler struct {
	affiliateService *service.AffiliateService
}

func NewAffiliateHandler(affiliateService *service.AffiliateService) *AffiliateHandler {
	return &AffiliateHandler{affiliateService: affiliateService}
}

// GetMyLedger returns the caller's affiliate record and balances.
func (h *AffiliateHandler) GetMyLedger(c *fiber.Ctx) error {
	ledger, err := h.affiliateService.LedgerForUser(c.UserContext(), currentIdentity(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Affiliate ledger retrieved successfully", ledger)
}

func (h *AffiliateHandler) GetLedger(c *fiber.Ctx) error {
	affiliateID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid affiliate ID", map[string]interface{}{
			"affiliate_id": c.Params("id"),
		})
	}

	ledger, err := h.affiliateService.Ledger(c.UserContext(), affiliateID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Affiliate ledger retrieved successfully", ledger)
}

func (h *AffiliateHandler) RegisterAffiliate(c *fiber.Ctx) error {
	var request RegisterAffiliateRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}
	userID, err := uuid.Parse(request.UserID)
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid user ID", map[string]interface{}{
			"user_id": request.UserID,
		})
	}

	affiliate, err := h.affiliateService.RegisterAffiliate(c.UserContext(), service.RegisterAffiliateRequest{
		UserID:         userID,
		CouponCode:     request.CouponCode,
		CommissionRate: request.CommissionRate,
		PayoutInfo:     request.PayoutInfo,
	})
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.CreatedResponse(c, "Affiliate registered successfully", affiliate)
}

func (h *AffiliateHandler) SetCommissionRate(c *fiber.Ctx) error {
	affiliateID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid affiliate ID", map[string]interface{}{
			"affiliate_id": c.Params("id"),
		})
	}

	var request SetCommissionRateRequest
	if err := c.BodyParser(&request); err != nil || request.CommissionRate == nil {
		return sharedHTTP.BadRequestResponse(c, "commission_rate is required", nil)
	}

	affiliate, err := h.affiliateService.SetCommissionRate(c.UserContext(), affiliateID, *request.CommissionRate)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Commission rate updated successfully", affiliate)
}
