package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// APIResponse is the envelope of the back-office and read endpoints. The
// storefront contract endpoints (checkout, webhook, cancel) answer with
// their own flat bodies.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *fiber.Ctx, message string, data interface{}) error {
	return respond(c, fiber.StatusOK, envelope(c, true, message, data, nil))
}

func CreatedResponse(c *fiber.Ctx, message string, data interface{}) error {
	return respond(c, fiber.StatusCreated, envelope(c, true, message, data, nil))
}

func BadRequestResponse(c *fiber.Ctx, message string, details map[string]interface{}) error {
	return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", message, nil)
}

func NotFoundResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", message, nil)
}

// ErrorResponse repeats the message at the top level so clients that only
// read `message` still see it.
func ErrorResponse(c *fiber.Ctx, status int, code, message string, details map[string]interface{}) error {
	apiErr := &APIError{Code: code, Message: message, Details: details}
	return respond(c, status, envelope(c, false, message, nil, apiErr))
}

func envelope(c *fiber.Ctx, ok bool, message string, data interface{}, apiErr *APIError) APIResponse {
	return APIResponse{
		Success:   ok,
		Message:   message,
		Data:      data,
		Error:     apiErr,
		Timestamp: time.Now().UTC(),
		RequestID: getRequestID(c),
	}
}

func respond(c *fiber.Ctx, status int, body APIResponse) error {
	return c.Status(status).JSON(body)
}

func getRequestID(c *fiber.Ctx) string {
	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		c.Set("X-Request-ID", requestID)
	}
	return requestID
}
