package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/service"
)

const (
	signatureHeader = "x-webhook-signature"
	timestampHeader = "x-webhook-timestamp"
)

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// HandlePayment verifies the signature over the exact bytes received. The
// gateway retries until it sees a 2xx.
func (h *WebhookHandler) HandlePayment(c *fiber.Ctx) error {
	signature := c.Get(signatureHeader)
	timestamp := c.Get(timestampHeader)
	if signature == "" || timestamp == "" {
		return flatError(c, fiber.StatusBadRequest, "Missing webhook signature headers")
	}

	body := append([]byte(nil), c.Body()...)
	if _, err := h.webhookService.HandleWebhook(c.UserContext(), signature, timestamp, body); err != nil {
		switch domain.KindOf(err) {
		case domain.KindValidation:
			return flatError(c, fiber.StatusBadRequest, publicMessage(err))
		case domain.KindAuth:
			return flatError(c, fiber.StatusForbidden, "Invalid signature")
		case domain.KindNotFound:
			return flatError(c, fiber.StatusNotFound, publicMessage(err))
		default:
			return flatError(c, fiber.StatusInternalServerError, internalErrorMessage)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
