package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/angelmondragon/boxoffice-backend/api/routes"
	"github.com/angelmondragon/boxoffice-backend/internal/bootstrap"
	"github.com/angelmondragon/boxoffice-backend/internal/webhooks/idempotency"
	squarewebhook "github.com/angelmondragon/boxoffice-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/boxoffice-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/boxoffice-backend/pkg/config"
	"github.com/angelmondragon/boxoffice-backend/pkg/db"
	"github.com/angelmondragon/boxoffice-backend/pkg/logger"
	"github.com/angelmondragon/boxoffice-backend/pkg/metrics"
	"github.com/angelmondragon/boxoffice-backend/pkg/migrate"
	"github.com/angelmondragon/boxoffice-backend/pkg/redis"
	"github.com/angelmondragon/boxoffice-backend/pkg/spa"
)

const shutdownTimeout = 20 * time.Second

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

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	paymentStack, err := bootstrap.NewPayments(context.Background(), bootstrap.PaymentsParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Registry: promRegistry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payments", err)
		os.Exit(1)
	}

	shell, err := spa.Load(cfg.SPA.IndexPath)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "path", cfg.SPA.IndexPath), "spa shell not found, serving fallback")
		shell = spa.Fallback()
	}

	deps := routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Resolver:    paymentStack.Resolver,
		Statuses:    paymentStack.Reservations,
		Payments:    paymentStack.Service,
		Shell:       shell,
		HTTPMetrics: metrics.NewHTTPMetrics(promRegistry),
		Gatherer:    promRegistry,
	}
	if err := wireWebhooks(&deps, cfg, paymentStack, redisClient, logg); err != nil {
		logg.Error(context.Background(), "failed to wire payment webhooks", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

// wireWebhooks enables the provider webhook routes whose clients are configured.
func wireWebhooks(deps *routes.Deps, cfg *config.Config, stack *bootstrap.Payments, redisClient *redis.Client, logg *logger.Logger) error {
	ttl := cfg.Payments.WebhookEventTTL
	if stack.Stripe != nil {
		svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Transactions: stack.Transactions,
			Confirmer:    stack.Confirmer,
			Logger:       logg,
		})
		if err != nil {
			return err
		}
		guard, err := idempotency.NewGuard(redisClient, ttl, "stripe")
		if err != nil {
			return err
		}
		deps.StripeClient, deps.StripeHooks, deps.StripeGuard = stack.Stripe, svc, guard
	}
	if stack.Square != nil {
		svc, err := squarewebhook.NewService(squarewebhook.ServiceParams{
			Transactions: stack.Transactions,
			Confirmer:    stack.Confirmer,
			Logger:       logg,
		})
		if err != nil {
			return err
		}
		guard, err := idempotency.NewGuard(redisClient, ttl, "square")
		if err != nil {
			return err
		}
		deps.SquareClient, deps.SquareHooks, deps.SquareGuard = stack.Square, svc, guard
	}
	return nil
}
