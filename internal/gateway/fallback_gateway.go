package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// FallbackGateway tries an ordered chain of gateways, moving on only after a
// retryable failure. The last error is reported once the chain is
// exhausted. Webhook signatures are always checked by the primary.
type FallbackGateway struct {
	chain  []PaymentGateway
	logger zerolog.Logger
}

func NewFallbackGateway(logger zerolog.Logger, primary PaymentGateway, fallbacks ...PaymentGateway) *FallbackGateway {
	return &FallbackGateway{
		chain:  append([]PaymentGateway{primary}, fallbacks...),
		logger: logger,
	}
}

func (f *FallbackGateway) CreateSession(ctx context.Context, request SessionRequest) (*Session, error) {
	var lastErr error
	for i, gw := range f.chain {
		session, err := gw.CreateSession(ctx, request)
		if err == nil {
			return session, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn().Err(err).Int("gateway", i).Str("order_id", request.OrderID.String()).Msg("session creation failed, trying next gateway")
	}
	return nil, domain.UpstreamError("all payment gateways failed", lastErr)
}

func (f *FallbackGateway) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (OrderStatus, error) {
	var lastErr error
	for _, gw := range f.chain {
		status, err := gw.GetOrderStatus(ctx, orderID)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", domain.UpstreamError("all payment gateways failed", lastErr)
}

func (f *FallbackGateway) VerifySignature(signature string, rawBody []byte, timestamp string) error {
	return f.chain[0].VerifySignature(signature, rawBody, timestamp)
}
