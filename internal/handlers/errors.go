package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

const internalErrorMessage = "Internal server error"

var errorCodes = map[domain.ErrorKind]string{
	domain.KindValidation:   "BAD_REQUEST",
	domain.KindAuth:         "UNAUTHORIZED",
	domain.KindForbidden:    "FORBIDDEN",
	domain.KindNotFound:     "NOT_FOUND",
	domain.KindInvalidState: "INVALID_STATE",
	domain.KindUpstream:     "UPSTREAM_ERROR",
	domain.KindPersistence:  "INTERNAL_SERVER_ERROR",
}

// statusFor is the default mapping; the storefront endpoints narrow it to
// their own contracts.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindInvalidState:
		return fiber.StatusBadRequest
	case domain.KindAuth:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// publicMessage hides store and runtime details from clients.
func publicMessage(err error) string {
	var e *domain.Error
	if !errors.As(err, &e) {
		return internalErrorMessage
	}
	switch e.Kind {
	case domain.KindPersistence:
		return internalErrorMessage
	case domain.KindUpstream:
		return e.Message
	}
	return e.Error()
}

func respondError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	return sharedHTTP.ErrorResponse(c, statusFor(err), errorCodes[kind], publicMessage(err), nil)
}

func flatError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
