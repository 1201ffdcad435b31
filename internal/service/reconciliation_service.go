package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/gateway"
	"github.com/wellness-storefront/order-ledger/internal/repository"
)

const (
	sweepBatchSize       = 100
	ExpiredSessionReason = "payment session expired"
)

type SweepReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Abandoned int `json:"abandoned"`
	Left      int `json:"left"`
	Failed    int `json:"failed"`
}

// ReconciliationService repairs state a lost webhook or a crash left
// behind. Every step reuses the compare-and-set paths of the live flow.
type ReconciliationService struct {
	store      repository.Store
	gateway    gateway.PaymentGateway
	webhooks   *WebhookService
	checkout   *CheckoutService
	affiliates *AffiliateService
	now        Clock
	logger     zerolog.Logger
}

func NewReconciliationService(
	store repository.Store,
	paymentGateway gateway.PaymentGateway,
	webhooks *WebhookService,
	checkout *CheckoutService,
	affiliates *AffiliateService,
	clock Clock,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		store:      store,
		gateway:    paymentGateway,
		webhooks:   webhooks,
		checkout:   checkout,
		affiliates: affiliates,
		now:        orDefault(clock),
		logger:     logger.With().Str("component", "reconciliation").Logger(),
	}
}

// SweepStalePending asks the gateway about online orders that stayed
// pending longer than olderThan.
func (s *ReconciliationService) SweepStalePending(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	var report SweepReport

	orders, err := s.store.Orders().ListStalePending(ctx, s.now().Add(-olderThan), sweepBatchSize)
	if err != nil {
		return report, err
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		log := s.logger.With().Str("order_id", order.ID.String()).Logger()

		if order.PaymentSessionID == "" {
			s.abandon(ctx, order, SessionFailureReason, &report, log)
			continue
		}

		status, err := s.gateway.GetOrderStatus(ctx, order.ID)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Msg("gateway status lookup failed")
			continue
		}

		switch status {
		case gateway.OrderPaid:
			outcome, err := s.webhooks.ApplyPaymentSuccess(ctx, order.ID)
			if err != nil {
				report.Failed++
				continue
			}
			if outcome == OutcomeConfirmed {
				report.Confirmed++
			} else {
				report.Left++
			}
		case gateway.OrderExpired, gateway.OrderTerminated:
			s.abandon(ctx, order, ExpiredSessionReason, &report, log)
		default:
			report.Left++
		}
	}

	s.logger.Info().
		Int("checked", report.Checked).
		Int("confirmed", report.Confirmed).
		Int("abandoned", report.Abandoned).
		Int("failed", report.Failed).
		Msg("stale pending sweep finished")
	return report, nil
}

func (s *ReconciliationService) abandon(ctx context.Context, order *domain.Order, reason string, report *SweepReport, log zerolog.Logger) {
	if err := s.checkout.Abandon(ctx, order, reason); err != nil {
		report.Failed++
		log.Error().Err(err).Msg("stale order not compensated")
		return
	}
	report.Abandoned++
}

// ReconcileReversals appends reversals that are missing for cancelled or
// refunded orders. It returns how many were written.
func (s *ReconciliationService) ReconcileReversals(ctx context.Context) (int, error) {
	accruals, err := s.store.Commissions().ListUnreversedVoidAccruals(ctx)
	if err != nil {
		return 0, err
	}

	reversed := 0
	for _, accrual := range accruals {
		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			return s.affiliates.ReverseForOrder(ctx, tx, accrual.OrderID)
		})
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", accrual.OrderID.String()).Msg("missing reversal not written")
			continue
		}
		reversed++
	}

	if reversed > 0 {
		s.logger.Warn().Int("reversals", reversed).Msg("missing commission reversals repaired")
	}
	return reversed, nil
}
