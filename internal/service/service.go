// Package service holds the order lifecycle: checkout, payment
// reconciliation, cancellation and the affiliate commission ledger.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

// Clock is injected so holding periods and timestamps can be tested.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func orDefault(clock Clock) Clock {
	if clock == nil {
		return systemClock
	}
	return clock
}

// logFailure logs a service error at a level that matches its kind; caller
// mistakes are not worth an error line.
func logFailure(logger zerolog.Logger, err error, msg string) {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindAuth, domain.KindForbidden, domain.KindNotFound, domain.KindInvalidState:
		logger.Debug().Err(err).Msg(msg)
	default:
		logger.Error().Err(err).Msg(msg)
	}
}

// detach keeps post-commit side effects running when the request that
// triggered them has already been answered.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
