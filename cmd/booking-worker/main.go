package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/internal/worker"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/db"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-backend/pkg/redis"
)

const serviceName = "booking-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	busClient, err := bus.Dial(ctx, cfg.Bus, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to bus", err)
		os.Exit(1)
	}
	defer busClient.Close()

	busMetrics := metrics.NewBusMetrics(prometheus.DefaultRegisterer)
	subscriber, err := bus.NewSubscriber(busClient, logg, busMetrics, cfg.Bus.ReconnectBackoff)
	if err != nil {
		logg.Error(ctx, "failed to create subscriber", err)
		os.Exit(1)
	}

	idemManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewServiceFromClient(dbClient, cfg.Billing, logg)
	if err != nil {
		logg.Error(ctx, "failed to create booking service", err)
		os.Exit(1)
	}

	consumer, err := bookings.NewConsumer(bookingService, subscriber, idemManager, cfg.Bus.BookingQueue, logg)
	if err != nil {
		logg.Error(ctx, "failed to create booking consumer", err)
		os.Exit(1)
	}

	svc, err := worker.NewService(worker.ServiceParams{
		Name:   serviceName,
		Logger: logg,
		Dependencies: map[string]worker.PingFunc{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"bus":      busClient.Ping,
		},
		Runners: map[string]worker.Runner{
			"booking-consumer": consumer,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "booking worker stopped", err)
		os.Exit(1)
	}
}
