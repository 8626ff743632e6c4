package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/homeserve-backend/internal/gateway"
	"github.com/angelmondragon/homeserve-backend/internal/worker"
	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/instance"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-backend/pkg/redis"
)

const (
	serviceName     = "gateway"
	shutdownTimeout = 10 * time.Second
)

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

	instanceID := instance.GetID(cfg.App.InstanceID)
	ctx = logg.WithField(ctx, "instance", instanceID)

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
	publisher, err := bus.NewPublisher(busClient, cfg.Bus.PublishTimeout, busMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create publisher", err)
		os.Exit(1)
	}
	subscriber, err := bus.NewSubscriber(busClient, logg, busMetrics, cfg.Bus.ReconnectBackoff)
	if err != nil {
		logg.Error(ctx, "failed to create subscriber", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}
	authenticator, err := gateway.NewAuthenticator(sessionManager)
	if err != nil {
		logg.Error(ctx, "failed to create authenticator", err)
		os.Exit(1)
	}
	translator, err := gateway.NewTranslator(publisher, time.Now)
	if err != nil {
		logg.Error(ctx, "failed to create intent translator", err)
		os.Exit(1)
	}
	presence, err := gateway.NewPresence(redisClient, cfg.Gateway.PresenceTTL, instanceID)
	if err != nil {
		logg.Error(ctx, "failed to create presence store", err)
		os.Exit(1)
	}
	offline, err := gateway.NewOfflineQueue(redisClient, cfg.Gateway.OfflineTTL, cfg.Gateway.OfflineMax)
	if err != nil {
		logg.Error(ctx, "failed to create offline queue", err)
		os.Exit(1)
	}
	participants, err := gateway.NewParticipants(redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create participant index", err)
		os.Exit(1)
	}

	server, err := gateway.NewServer(gateway.ServerParams{
		Config:   cfg.Gateway,
		Auth:     authenticator,
		Intents:  translator,
		Registry: gateway.NewRegistry(),
		Presence: presence,
		Offline:  offline,
		Metrics:  metrics.NewGatewayMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create gateway server", err)
		os.Exit(1)
	}

	idemManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}
	bridge, err := gateway.NewBridge(gateway.BridgeParams{
		Deliverer:    server,
		Participants: participants,
		Subscriber:   subscriber,
		Idempotency:  idemManager,
		Queue:        cfg.Bus.GatewayQueue + "." + instanceID,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create event bridge", err)
		os.Exit(1)
	}

	mux := chi.NewRouter()
	mux.Handle("/ws", server)
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())
	mux.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Gateway.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	svc, err := worker.NewService(worker.ServiceParams{
		Name:   serviceName,
		Logger: logg,
		Dependencies: map[string]worker.PingFunc{
			"redis": redisClient.Ping,
			"bus":   busClient.Ping,
		},
		Runners: map[string]worker.Runner{
			"sockets": server,
			"bridge":  bridge,
			"http":    worker.RunnerFunc(serveHTTP(httpServer, server, logg)),
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create gateway service", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "gateway stopped", err)
		os.Exit(1)
	}
}

// serveHTTP listens until ctx ends, then closes sockets before draining the
// listener.
func serveHTTP(httpServer *http.Server, sockets *gateway.Server, logg *logger.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			logg.Info(logg.WithField(ctx, "addr", httpServer.Addr), "starting gateway listener")
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sockets.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "failed to clear presence on shutdown", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	}
}
