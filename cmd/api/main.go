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

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/routes"
	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/internal/partners"
	"github.com/angelmondragon/homeserve-backend/internal/recurring"
	paymentswebhook "github.com/angelmondragon/homeserve-backend/internal/webhooks/payments"
	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/db"
	"github.com/angelmondragon/homeserve-backend/pkg/instance"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
	"github.com/angelmondragon/homeserve-backend/pkg/migrate"
	"github.com/angelmondragon/homeserve-backend/pkg/redis"
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

	dbClient, err := db.New(ctx, cfg.DB, logg)
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewServiceFromClient(dbClient, cfg.Billing, logg)
	if err != nil {
		logg.Error(ctx, "failed to create booking service", err)
		os.Exit(1)
	}

	directory, err := hubs.NewDirectory(hubs.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create hub directory", err)
		os.Exit(1)
	}
	recurringService, err := recurring.NewService(recurring.ServiceParams{
		Repo:   recurring.NewRepository(dbClient.DB()),
		Hubs:   directory,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create recurring service", err)
		os.Exit(1)
	}

	tracker, err := partners.NewTracker(partners.TrackerParams{
		Repo:   partners.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create availability tracker", err)
		os.Exit(1)
	}

	paymentService, err := paymentswebhook.NewService(bookingService, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payment webhook service", err)
		os.Exit(1)
	}
	paymentGuard, err := paymentswebhook.NewIdempotencyGuard(redisClient, cfg.Payments.IdempotencyTTL, "payment-webhook")
	if err != nil {
		logg.Error(ctx, "failed to create payment webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(cfg.App.InstanceID),
	})

	handler := routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		Gatherer:    prometheus.DefaultGatherer,
		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Redis:        redisClient,
		Sessions:     sessionManager,
		Bookings:     bookingService,
		Recurring:    recurringService,
		Availability: tracker,
		Payments:     paymentService,
		PaymentGuard: paymentGuard,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
		return
	}
	logg.Info(shutdownCtx, "api server stopped")
}
