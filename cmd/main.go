package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/wellness-storefront/order-ledger/internal/config"
	"github.com/wellness-storefront/order-ledger/internal/handlers"
	"github.com/wellness-storefront/order-ledger/internal/identity"
	"github.com/wellness-storefront/order-ledger/internal/logging"
	"github.com/wellness-storefront/order-ledger/internal/repository"
	"github.com/wellness-storefront/order-ledger/shared/messaging"
)

var Version = "dev"

const workerQueue = "order-ledger-notifications"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "order-ledger",
		Short:         "Storefront order lifecycle, payment reconciliation and affiliate ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file read before the environment")

	rootCmd.AddCommand(serveCmd(&envFile))
	rootCmd.AddCommand(workerCmd(&envFile))
	rootCmd.AddCommand(migrateCmd(&envFile))
	rootCmd.AddCommand(sweepCmd(&envFile))
	rootCmd.AddCommand(payoutsCmd(&envFile))
	rootCmd.AddCommand(tokenCmd(&envFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(envFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogPretty), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(envFile *string) *cobra.Command {
	var sweepEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			app, err := newApplication(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.close()

			server := setupFiberApp()
			routes := &handlers.Routes{
				Auth:       handlers.NewAuthMiddleware(app.identity),
				Checkout:   handlers.NewCheckoutHandler(app.checkout, logger),
				Webhooks:   handlers.NewWebhookHandler(app.webhooks),
				Orders:     handlers.NewOrderHandler(app.orders, app.cancellations),
				Carts:      handlers.NewCartHandler(app.carts),
				Affiliates: handlers.NewAffiliateHandler(app.affiliates),
				Admin:      handlers.NewAdminHandler(app.orders),
				Store:      app.store,
			}
			routes.Register(server)

			if sweepEvery > 0 {
				go runSweeps(ctx, app, sweepEvery)
			}

			go func() {
				<-ctx.Done()
				logger.Info().Msg("shutting down")
				if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
					logger.Error().Err(err).Msg("shutdown error")
				}
			}()

			logger.Info().Str("port", cfg.ServerPort).Str("store", cfg.StoreDriver).Str("gateway", cfg.GatewayProvider).Msg("order ledger listening")
			if err := server.Listen(":" + cfg.ServerPort); err != nil {
				return fmt.Errorf("server start error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", 0, "Run the stale pending sweep on this interval (0 disables it)")
	return cmd
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Order Ledger",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,Idempotency-Key,x-webhook-signature,x-webhook-timestamp",
	}))

	return app
}

func runSweeps(ctx context.Context, app *application, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.sweeper.SweepStalePending(ctx, app.cfg.StalePendingAfter); err != nil {
				app.logger.Error().Err(err).Msg("stale pending sweep failed")
			}
			if _, err := app.sweeper.ReconcileReversals(ctx); err != nil {
				app.logger.Error().Err(err).Msg("reversal reconciliation failed")
			}
		}
	}
}

func workerCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver order notifications from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if cfg.NotifierDriver != config.NotifierAMQP {
				return errors.New("the worker needs NOTIFIER_DRIVER=amqp")
			}
			ctx, stop := signalContext()
			defer stop()

			app, err := newApplication(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer app.close()

			consumer := messaging.NewConsumer(app.rabbit, workerQueue, "order-ledger-worker", logger)
			routingKeys := []string{"order.*.order.confirmed", "order.*.order.cancelled"}
			if err := consumer.ConsumeEvents(ctx, routingKeys, app.notifications.HandleEvent); err != nil {
				return err
			}

			logger.Info().Str("queue", workerQueue).Msg("notification worker started")
			select {
			case <-ctx.Done():
			case <-app.rabbit.Done():
			}
			logger.Info().Msg("notification worker stopped")
			return nil
		},
	}
}

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			db, err := repository.OpenDatabase(cmd.Context(), cfg.DB(), logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return repository.Migrate(db, cfg.DBName, logger)
		},
	}
}

func sweepCmd(envFile *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stale pending orders with the gateway and repair missing reversals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.StalePendingAfter
			}
			ctx, stop := signalContext()
			defer stop()

			app, err := newApplication(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.close()

			report, err := app.sweeper.SweepStalePending(ctx, olderThan)
			if err != nil {
				return err
			}
			reversals, err := app.sweeper.ReconcileReversals(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"sweep":     report,
				"reversals": reversals,
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only consider orders pending for longer than this (defaults to STALE_PENDING_AFTER)")
	return cmd
}

func payoutsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "payouts",
		Short: "Record due affiliate payouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			app, err := newApplication(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.close()

			payouts, err := app.affiliates.RunPayouts(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, payouts)
		},
	}
}

func tokenCmd(envFile *string) *cobra.Command {
	var userID, email, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			provider := identity.NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
			token, err := provider.IssueToken(id, email, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User id the token is issued for")
	cmd.Flags().StringVar(&email, "email", "", "E-mail claim")
	cmd.Flags().StringVar(&role, "role", identity.RoleCustomer, "Role claim (customer or admin)")
	cmd.MarkFlagRequired("user-id")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
