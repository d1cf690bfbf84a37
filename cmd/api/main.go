package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/solestack/storefront/api/routes"
	checkoutsvc "github.com/solestack/storefront/internal/checkout"
	"github.com/solestack/storefront/internal/checkout/reservation"
	"github.com/solestack/storefront/internal/ledger"
	"github.com/solestack/storefront/internal/notifications"
	"github.com/solestack/storefront/internal/orders"
	"github.com/solestack/storefront/internal/payments"
	"github.com/solestack/storefront/internal/quote"
	"github.com/solestack/storefront/internal/returns"
	"github.com/solestack/storefront/internal/settlement"
	"github.com/solestack/storefront/internal/webhooks"
	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/db"
	"github.com/solestack/storefront/pkg/logger"
	"github.com/solestack/storefront/pkg/metrics"
	"github.com/solestack/storefront/pkg/migrate"
	"github.com/solestack/storefront/pkg/nowpayments"
	"github.com/solestack/storefront/pkg/outbox"
	"github.com/solestack/storefront/pkg/redis"
	pkgstripe "github.com/solestack/storefront/pkg/stripe"
	"github.com/solestack/storefront/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, "storefront-api", logg)
	if err != nil {
		logg.Error(ctx, "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok && err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	conn := dbClient.DB()
	sagaMetrics := metrics.NewSagaMetrics(prometheus.DefaultRegisterer)

	stock, err := ledger.NewService(conn, ledger.NewRepository(conn), logg, sagaMetrics)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("stock ledger: %w", err)
	}
	coordinator, err := reservation.NewCoordinator(stock, logg, sagaMetrics)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("reservation coordinator: %w", err)
	}
	quotes, err := quote.NewEngine(stock, cfg.Quote)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("quote engine: %w", err)
	}

	cardRail, err := buildCardRail(ctx, cfg, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	cryptoRail, err := buildCryptoRail(cfg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	var rails []payments.Rail
	if cardRail != nil {
		rails = append(rails, cardRail)
	} else {
		logg.Warn(ctx, "card rail disabled: stripe is not configured")
	}
	if cryptoRail != nil {
		rails = append(rails, cryptoRail)
	} else {
		logg.Warn(ctx, "crypto rail disabled: nowpayments is not configured")
	}
	bridge, err := payments.NewBridge(logg, rails...)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("payment bridge: %w", err)
	}

	dispatcher, err := notifications.NewDispatcher(outbox.NewService(outbox.NewRepository(conn), logg), logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("notifications: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Tx:       dbClient,
		Stock:    stock,
		Notifier: dispatcher,
		Payments: bridge,
		Logger:   logg,
		Metrics:  sagaMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Tx:          dbClient,
		Orders:      ordersRepo,
		Quotes:      quotes,
		Reservation: coordinator,
		Payments:    bridge,
		Logger:      logg,
		Metrics:     sagaMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("checkout service: %w", err)
	}

	settlementHandler, err := settlement.NewHandler(settlement.HandlerParams{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Stock:    stock,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  sagaMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("settlement handler: %w", err)
	}

	returnsService, err := returns.NewService(dbClient, returns.NewRepository(conn), ordersRepo, stock, dispatcher, logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("returns service: %w", err)
	}

	guard, err := webhooks.NewGuard(redisClient, cfg.Webhooks.DedupeTTL)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("webhook guard: %w", err)
	}

	deps := routes.Dependencies{
		DB:         dbClient,
		Store:      redisClient,
		Checkout:   checkoutService,
		Orders:     ordersService,
		Returns:    returnsService,
		Stock:      stock,
		Settlement: settlementHandler,
		Guard:      guard,
	}
	if cardRail != nil {
		deps.CardRail = cardRail
	}
	if cryptoRail != nil {
		deps.CryptoRail = cryptoRail
	}
	return deps, nil
}

// buildCardRail returns nil when Stripe is not configured.
func buildCardRail(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*payments.CardRail, error) {
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		return nil, nil
	}
	client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}
	rail, err := payments.NewCardRail(pkgstripe.NewPaymentIntents(client), client.SigningSecret())
	if err != nil {
		return nil, fmt.Errorf("card rail: %w", err)
	}
	return rail, nil
}

// buildCryptoRail returns nil when NOWPayments is not configured.
func buildCryptoRail(cfg *config.Config) (*payments.CryptoRail, error) {
	if strings.TrimSpace(cfg.Crypto.APIKey) == "" {
		return nil, nil
	}
	client, err := nowpayments.NewClient(cfg.Crypto.APIKey,
		nowpayments.WithBaseURL(cfg.Crypto.BaseURL),
		nowpayments.WithTimeout(cfg.Crypto.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("nowpayments client: %w", err)
	}
	rail, err := payments.NewCryptoRail(client, payments.CryptoRailOptions{
		IPNSecret:   cfg.Crypto.IPNSecret,
		PayCurrency: cfg.Crypto.PayCurrency,
		CallbackURL: strings.TrimRight(cfg.App.PublicBaseURL, "/") + "/api/v1/webhooks/crypto",
	})
	if err != nil {
		return nil, fmt.Errorf("crypto rail: %w", err)
	}
	return rail, nil
}
