package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type CashfreeConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	APIVersion   string
	Currency     string
	Timeout      time.Duration
}

// CashfreeGateway talks to a Cashfree-compatible PG orders API.
type CashfreeGateway struct {
	*WebhookVerifier
	config CashfreeConfig
	logger zerolog.Logger
}

func NewCashfreeGateway(config CashfreeConfig, verifier *WebhookVerifier, logger zerolog.Logger) *CashfreeGateway {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Currency == "" {
		config.Currency = "INR"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &CashfreeGateway{
		WebhookVerifier: verifier,
		config:          config,
		logger:          logger.With().Str("component", "cashfree").Logger(),
	}
}

type cashfreeCustomer struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type cashfreeOrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type cashfreeOrderRequest struct {
	OrderID         string            `json:"order_id"`
	OrderAmount     json.Number       `json:"order_amount"`
	OrderCurrency   string            `json:"order_currency"`
	CustomerDetails cashfreeCustomer  `json:"customer_details"`
	OrderMeta       cashfreeOrderMeta `json:"order_meta"`
}

type cashfreeOrderResponse struct {
	CFOrderID        json.Number `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
}

type cashfreeError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (g *CashfreeGateway) CreateSession(ctx context.Context, request SessionRequest) (*Session, error) {
	currency := request.Currency
	if currency == "" {
		currency = g.config.Currency
	}

	payload := cashfreeOrderRequest{
		OrderID:       request.OrderID.String(),
		OrderAmount:   json.Number(request.Amount.StringFixed(2)),
		OrderCurrency: currency,
		CustomerDetails: cashfreeCustomer{
			CustomerID:    request.CustomerID.String(),
			CustomerName:  request.CustomerName,
			CustomerEmail: request.CustomerEmail,
			CustomerPhone: request.CustomerPhone,
		},
		OrderMeta: cashfreeOrderMeta{ReturnURL: request.ReturnURL},
	}

	agent := fiber.Post(g.config.BaseURL + "/orders")
	agent.JSON(payload)

	var response cashfreeOrderResponse
	if err := g.do(ctx, agent, &response); err != nil {
		return nil, err
	}
	if response.PaymentSessionID == "" {
		return nil, domain.UpstreamError("gateway returned no payment session", nil)
	}

	g.logger.Info().
		Str("order_id", request.OrderID.String()).
		Str("cf_order_id", response.CFOrderID.String()).
		Msg("payment session created")

	return &Session{
		SessionID:      response.PaymentSessionID,
		GatewayOrderID: response.CFOrderID.String(),
	}, nil
}

func (g *CashfreeGateway) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (OrderStatus, error) {
	agent := fiber.Get(g.config.BaseURL + "/orders/" + orderID.String())

	var response cashfreeOrderResponse
	if err := g.do(ctx, agent, &response); err != nil {
		return "", err
	}
	return OrderStatus(strings.ToUpper(response.OrderStatus)), nil
}

// do sends the request with the credential headers, bounded by the
// configured timeout or the context deadline, whichever is sooner.
func (g *CashfreeGateway) do(ctx context.Context, agent *fiber.Agent, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return domain.UpstreamError("gateway request cancelled", err)
	}

	timeout := g.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent.Set("x-client-id", g.config.ClientID)
	agent.Set("x-client-secret", g.config.ClientSecret)
	agent.Set("x-api-version", g.config.APIVersion)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Timeout(timeout)

	if err := agent.Parse(); err != nil {
		return domain.UpstreamError("gateway request build error", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return domain.UpstreamError("gateway request failed", errors.Join(errs...))
	}

	if code < 200 || code >= 300 {
		var apiErr cashfreeError
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return domain.UpstreamError("gateway rejected request", &StatusError{StatusCode: code, Message: message})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.UpstreamError("gateway response decode error", fmt.Errorf("decode: %w", err))
	}
	return nil
}
