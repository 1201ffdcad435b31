package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// MockPaymentGateway is a deterministic in-process gateway for the memory
// mode and for tests. Sessions are recorded and statuses can be scripted.
type MockPaymentGateway struct {
	*WebhookVerifier
	logger zerolog.Logger

	mu         sync.Mutex
	sessionErr error
	sessions   map[uuid.UUID]SessionRequest
	statuses   map[uuid.UUID]OrderStatus
}

func NewMockPaymentGateway(verifier *WebhookVerifier, logger zerolog.Logger) *MockPaymentGateway {
	return &MockPaymentGateway{
		WebhookVerifier: verifier,
		logger:          logger.With().Str("component", "mock_gateway").Logger(),
		sessions:        make(map[uuid.UUID]SessionRequest),
		statuses:        make(map[uuid.UUID]OrderStatus),
	}
}

// FailSessions makes every following CreateSession call return err; nil
// restores normal behaviour.
func (m *MockPaymentGateway) FailSessions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionErr = err
}

func (m *MockPaymentGateway) SetOrderStatus(orderID uuid.UUID, status OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderID] = status
}

func (m *MockPaymentGateway) Sessions() []SessionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRequest, 0, len(m.sessions))
	for _, request := range m.sessions {
		out = append(out, request)
	}
	return out
}

func (m *MockPaymentGateway) CreateSession(ctx context.Context, request SessionRequest) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.UpstreamError("gateway request cancelled", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionErr != nil {
		return nil, domain.UpstreamError("gateway request failed", m.sessionErr)
	}

	m.sessions[request.OrderID] = request
	if _, ok := m.statuses[request.OrderID]; !ok {
		m.statuses[request.OrderID] = OrderActive
	}

	m.logger.Debug().
		Str("order_id", request.OrderID.String()).
		Str("amount", request.Amount.StringFixed(2)).
		Msg("mock payment session created")

	return &Session{
		SessionID:      "session_" + request.OrderID.String(),
		GatewayOrderID: fmt.Sprintf("CF_%s", request.OrderID.String()[:8]),
	}, nil
}

func (m *MockPaymentGateway) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.UpstreamError("gateway request cancelled", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statuses[orderID]
	if !ok {
		return "", domain.UpstreamError("gateway rejected request", &StatusError{StatusCode: 404, Message: "order not found"})
	}
	return status, nil
}
