package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wellness-storefront/order-ledger/internal/cache"
	"github.com/wellness-storefront/order-ledger/internal/config"
	"github.com/wellness-storefront/order-ledger/internal/domain"
	"github.com/wellness-storefront/order-ledger/internal/gateway"
	"github.com/wellness-storefront/order-ledger/internal/identity"
	"github.com/wellness-storefront/order-ledger/internal/notifier"
	"github.com/wellness-storefront/order-ledger/internal/repository"
	"github.com/wellness-storefront/order-ledger/internal/repository/memstore"
	"github.com/wellness-storefront/order-ledger/internal/service"
	"github.com/wellness-storefront/order-ledger/shared/messaging"
)

// application holds every wired dependency of one process.
type application struct {
	cfg    *config.Config
	logger zerolog.Logger

	store       repository.Store
	gateway     gateway.PaymentGateway
	identity    *identity.JWTProvider
	idempotency cache.IdempotencyStore
	rabbit      *messaging.RabbitMQClient
	notifier    notifier.Notifier

	affiliates    *service.AffiliateService
	checkout      *service.CheckoutService
	webhooks      *service.WebhookService
	cancellations *service.CancellationService
	orders        *service.OrderService
	carts         *service.CartService
	sweeper       *service.ReconciliationService
	notifications *service.NotificationService

	closers []func() error
}

// newApplication wires the store, gateway and services. withBroker asks
// for a RabbitMQ connection even when notifications are delivered inline.
func newApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withBroker bool) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	if err := app.openStore(ctx); err != nil {
		app.close()
		return nil, err
	}
	app.openGateway()
	app.identity = identity.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err := app.openIdempotency(ctx); err != nil {
		app.close()
		return nil, err
	}

	app.affiliates = service.NewAffiliateService(app.store, service.AffiliateConfig{
		HoldingPeriod: cfg.HoldingPeriod(),
		Payouts: domain.PayoutPolicy{
			Threshold: cfg.PayoutThreshold(),
			Interval:  cfg.PayoutInterval(),
		},
		CouponDiscount: cfg.AffiliateDiscount(),
	}, nil, logger)
	app.notifications = service.NewNotificationService(app.store, notifier.NewLogEmailSender(logger), cfg.AdminEmail, nil, logger)

	if err := app.openNotifier(withBroker); err != nil {
		app.close()
		return nil, err
	}

	app.checkout = service.NewCheckoutService(app.store, app.gateway, app.notifier, app.idempotency, service.CheckoutConfig{
		Currency:          cfg.Currency,
		ReturnURLTemplate: cfg.ReturnURLTemplate,
		GatewayTimeout:    cfg.GatewayTimeout,
	}, nil, logger)
	app.webhooks = service.NewWebhookService(app.store, app.gateway, app.affiliates, app.notifier, nil, logger)
	app.cancellations = service.NewCancellationService(app.store, app.affiliates, app.notifier, nil, logger)
	app.orders = service.NewOrderService(app.store, app.affiliates, nil, logger)
	app.carts = service.NewCartService(app.store, nil, logger)
	app.sweeper = service.NewReconciliationService(app.store, app.gateway, app.webhooks, app.checkout, app.affiliates, nil, logger)

	return app, nil
}

func (a *application) openStore(ctx context.Context) error {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.Warn().Msg("using the in-memory store, data is lost on exit")
		a.store = memstore.New()
		return nil
	}

	db, err := repository.OpenDatabase(ctx, a.cfg.DB(), a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	a.store = repository.NewPostgresStore(db)
	return nil
}

func (a *application) openGateway() {
	verifier := gateway.NewWebhookVerifier(a.cfg.WebhookSecret, a.cfg.WebhookTolerance)
	if a.cfg.WebhookSecret == "" {
		a.logger.Warn().Msg("WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	if a.cfg.GatewayProvider == config.GatewayMock {
		a.gateway = gateway.NewMockPaymentGateway(verifier, a.logger)
		return
	}

	cashfreeConfig := gateway.CashfreeConfig{
		BaseURL:      a.cfg.CashfreeBaseURL,
		ClientID:     a.cfg.CashfreeClientID,
		ClientSecret: a.cfg.CashfreeSecret,
		APIVersion:   a.cfg.CashfreeAPIVersion,
		Currency:     a.cfg.Currency,
		Timeout:      a.cfg.GatewayTimeout,
	}
	primary := gateway.NewCashfreeGateway(cashfreeConfig, verifier, a.logger)
	if a.cfg.CashfreeFallback == "" {
		a.gateway = primary
		return
	}

	fallbackConfig := cashfreeConfig
	fallbackConfig.BaseURL = a.cfg.CashfreeFallback
	a.gateway = gateway.NewFallbackGateway(a.logger, primary, gateway.NewCashfreeGateway(fallbackConfig, verifier, a.logger))
}

func (a *application) openIdempotency(ctx context.Context) error {
	if a.cfg.RedisAddr == "" {
		a.idempotency = cache.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis connection error: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.idempotency = cache.NewRedisIdempotencyStore(client, a.cfg.IdempotencyTTL)
	a.logger.Info().Str("addr", a.cfg.RedisAddr).Msg("redis connection established")
	return nil
}

func (a *application) openNotifier(withBroker bool) error {
	if a.cfg.NotifierDriver == config.NotifierInline && !withBroker {
		a.notifier = notifier.NewInlineNotifier(a.notifications.HandleEvent, a.cfg.NotifyTimeout)
		return nil
	}

	a.rabbit = messaging.NewRabbitMQClient(a.cfg.RabbitMQ(), a.logger)
	if err := a.rabbit.Connect(); err != nil {
		return fmt.Errorf("rabbitmq connection error: %w", err)
	}
	a.closers = append(a.closers, a.rabbit.Close)

	if a.cfg.NotifierDriver == config.NotifierInline {
		a.notifier = notifier.NewInlineNotifier(a.notifications.HandleEvent, a.cfg.NotifyTimeout)
		return nil
	}
	publisher := messaging.NewPublisher(a.rabbit, a.logger)
	a.notifier = notifier.NewAMQPNotifier(publisher, a.cfg.NotifyTimeout, a.logger)
	return nil
}

func (a *application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
