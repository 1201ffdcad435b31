package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

type scriptedGateway struct {
	*MockPaymentGateway
	calls int
	err   error
}

func (s *scriptedGateway) CreateSession(ctx context.Context, request SessionRequest) (*Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.MockPaymentGateway.CreateSession(ctx, request)
}

func newScripted(err error) *scriptedGateway {
	return &scriptedGateway{
		MockPaymentGateway: NewMockPaymentGateway(NewWebhookVerifier(testSecret, 0), zerolog.Nop()),
		err:                err,
	}
}

func sessionRequest() SessionRequest {
	return SessionRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(250), Currency: "INR", CustomerID: uuid.New()}
}

func TestFallbackMovesOnAfterRetryableFailure(t *testing.T) {
	primary := newScripted(domain.UpstreamError("gateway rejected request", &StatusError{StatusCode: 503, Message: "maintenance"}))
	secondary := newScripted(nil)
	fb := NewFallbackGateway(zerolog.Nop(), primary, secondary)

	session, err := fb.CreateSession(context.Background(), sessionRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackStopsOnPermanentFailure(t *testing.T) {
	primary := newScripted(domain.UpstreamError("gateway rejected request", &StatusError{StatusCode: 400, Message: "bad phone"}))
	secondary := newScripted(nil)
	fb := NewFallbackGateway(zerolog.Nop(), primary, secondary)

	_, err := fb.CreateSession(context.Background(), sessionRequest())

	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 400, statusErr.StatusCode)
}

func TestFallbackReportsExhaustion(t *testing.T) {
	transport := domain.UpstreamError("gateway request failed", errors.New("connection refused"))
	fb := NewFallbackGateway(zerolog.Nop(), newScripted(transport), newScripted(transport))

	_, err := fb.CreateSession(context.Background(), sessionRequest())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	assert.Contains(t, err.Error(), "all payment gateways failed")
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 429}))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 502}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: 401}))
	assert.True(t, IsRetryable(domain.UpstreamError("timeout", errors.New("deadline"))))
	assert.False(t, IsRetryable(domain.ValidationError("bad")))
}

func TestReturnURL(t *testing.T) {
	id := uuid.MustParse("5b1f3c0e-0000-4000-8000-000000000001")
	assert.Equal(t, "https://shop.example/orders/5b1f3c0e-0000-4000-8000-000000000001/status",
		ReturnURL("https://shop.example/orders/{order_id}/status", id))
}
