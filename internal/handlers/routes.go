package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	sharedHTTP "github.com/wellness-storefront/order-ledger/shared/http"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Routes struct {
	Auth       *AuthMiddleware
	Checkout   *CheckoutHandler
	Webhooks   *WebhookHandler
	Orders     *OrderHandler
	Carts      *CartHandler
	Affiliates *AffiliateHandler
	Admin      *AdminHandler
	Store      Pinger
}

func (r *Routes) Register(app *fiber.App) {
	app.Get("/api/v1/health", r.health)

	api := app.Group("/api")
	api.Post("/checkout", r.Checkout.Checkout)
	api.Post("/webhooks/payment", r.Webhooks.HandlePayment)

	requireUser := r.Auth.RequireUser()

	orders := api.Group("/orders")
	orders.Post("/cancel", r.Auth.RequireUserFlat(), r.Orders.CancelOrder)
	orders.Get("/", requireUser, r.Orders.ListMyOrders)
	orders.Get("/:id", requireUser, r.Orders.GetOrder)

	cart := api.Group("/cart", requireUser)
	cart.Get("/", r.Carts.GetCart)
	cart.Post("/items", r.Carts.AddItem)

	affiliates := api.Group("/affiliates", requireUser)
	affiliates.Get("/me", r.Affiliates.GetMyLedger)

	admin := api.Group("/admin", requireUser, r.Auth.RequireAdmin())
	admin.Get("/orders", r.Admin.ListOrders)
	admin.Patch("/orders/:id/status", r.Admin.AdvanceStatus)
	admin.Post("/orders/:id/refund", r.Admin.MarkRefunded)
	admin.Post("/coupons", r.Admin.CreateCoupon)
	admin.Get("/coupons", r.Admin.ListCoupons)
	admin.Patch("/coupons/:code", r.Admin.SetCouponActive)
	admin.Post("/affiliates", r.Affiliates.RegisterAffiliate)
	admin.Patch("/affiliates/:id/commission-rate", r.Affiliates.SetCommissionRate)
	admin.Get("/affiliates/:id/ledger", r.Affiliates.GetLedger)

	app.Use(func(c *fiber.Ctx) error {
		return sharedHTTP.NotFoundResponse(c, "Endpoint not found")
	})
}

func (r *Routes) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := r.Store.Ping(ctx); err != nil {
		return sharedHTTP.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNHEALTHY", "Store unreachable", nil)
	}
	return sharedHTTP.SuccessResponse(c, "Service is healthy", fiber.Map{
		"service": "order-ledger",
		"status":  "healthy",
	})
}

// ErrorHandler renders errors that escape the handlers, including fiber's
// own routing errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := internalErrorMessage
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	return sharedHTTP.ErrorResponse(c, code, "ERROR", message, nil)
}
