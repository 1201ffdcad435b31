package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/wellness-storefront/order-ledger/internal/identity"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

const identityKey = "identity"

type AuthMiddleware struct {
	provider identity.Provider
}

func NewAuthMiddleware(provider identity.Provider) *AuthMiddleware {
	return &AuthMiddleware{provider: provider}
}

// RequireUser resolves the bearer token and stores the caller's identity
// in the request locals.
func (m *AuthMiddleware) RequireUser() fiber.Handler {
	return m.requireUser(sharedHTTP.UnauthorizedResponse)
}

// RequireUserFlat is RequireUser for the storefront endpoints, which answer
// {success:false, error} instead of the envelope.
func (m *AuthMiddleware) RequireUserFlat() fiber.Handler {
	return m.requireUser(func(c *fiber.Ctx, message string) error {
		return cancelError(c, fiber.StatusUnauthorized, message)
	})
}

func (m *AuthMiddleware) requireUser(unauthorized func(c *fiber.Ctx, message string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return unauthorized(c, "Authorization header with a Bearer token is required")
		}

		caller, err := m.provider.Resolve(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(identityKey, caller)
		return c.Next()
	}
}

// RequireAdmin must run after RequireUser.
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := currentIdentity(c)
		if caller == nil {
			return sharedHTTP.UnauthorizedResponse(c, "Authentication required")
		}
		if !caller.IsAdmin() {
			return sharedHTTP.ForbiddenResponse(c, "Admin access required")
		}
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func currentIdentity(c *fiber.Ctx) *identity.Identity {
	caller, _ := c.Locals(identityKey).(*identity.Identity)
	return caller
}
