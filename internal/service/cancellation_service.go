package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/notifier"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

type CancelResult struct {
	Order        *domain.Order
	RefundStatus domain.RefundStatus
}

// CancellationService cancels orders on behalf of their owner. Refunds are
// only classified here; an admin executes them.
type CancellationService struct {
	store      repository.Store
	affiliates *AffiliateService
	notifier   notifier.Notifier
	now        Clock
	logger     zerolog.Logger
}

func NewCancellationService(store repository.Store, affiliates *AffiliateService, orderNotifier notifier.Notifier, clock Clock, logger zerolog.Logger) *CancellationService {
	return &CancellationService{
		store:      store,
		affiliates: affiliates,
		notifier:   orderNotifier,
		now:        orDefault(clock),
		logger:     logger.With().Str("component", "cancellation").Logger(),
	}
}

func (s *CancellationService) Cancel(ctx context.Context, orderID, userID uuid.UUID, reason string) (*CancelResult, error) {
	log := s.logger.With().Str("order_id", orderID.String()).Str("user_id", userID.String()).Logger()

	order, err := s.store.Orders().GetOrderByID(ctx, orderID)
	if err != nil {
		logFailure(log, err, "cancellation lookup failed")
		return nil, err
	}
	if !order.IsOwnedBy(userID) {
		log.Warn().Msg("cancellation attempted by a user who does not own the order")
		return nil, domain.ForbiddenError("you are not allowed to cancel this order")
	}
	if !order.Status.IsCancellable() {
		return nil, domain.InvalidTransitionError(order.Status, "cancelled")
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = domain.DefaultCancellationReason
	}

	var cancelled *domain.Order
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		applied, err := tx.Orders().CancelOrder(ctx, orderID, reason, s.now())
		if err != nil {
			return err
		}
		current, err := tx.Orders().GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !applied {
			return domain.InvalidTransitionError(current.Status, "cancelled")
		}
		cancelled = current
		return s.affiliates.ReverseForOrder(ctx, tx, orderID)
	})
	if err != nil {
		logFailure(log, err, "order cancellation failed")
		return nil, err
	}

	refund := cancelled.RefundClassification()
	log.Info().Str("reason", reason).Str("refund_status", string(refund)).Msg("order cancelled")

	if err := s.notifier.SendCancellationEmails(detach(ctx), orderID, reason, string(refund), cancelled.IsCOD()); err != nil {
		log.Error().Err(err).Msg("cancellation notice dispatch failed")
	}

	return &CancelResult{Order: cancelled, RefundStatus: refund}, nil
}
