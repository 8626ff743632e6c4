package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	bookingcontrollers "github.com/angelmondragon/homeserve-backend/api/controllers/bookings"
	partnercontrollers "github.com/angelmondragon/homeserve-backend/api/controllers/partners"
	realtimecontrollers "github.com/angelmondragon/homeserve-backend/api/controllers/realtime"
	recurringcontrollers "github.com/angelmondragon/homeserve-backend/api/controllers/recurring"
	webhookcontrollers "github.com/angelmondragon/homeserve-backend/api/controllers/webhooks"
	"github.com/angelmondragon/homeserve-backend/api/middleware"
	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/internal/partners"
	"github.com/angelmondragon/homeserve-backend/internal/recurring"
	paymentswebhook "github.com/angelmondragon/homeserve-backend/internal/webhooks/payments"
	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
	"github.com/angelmondragon/homeserve-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	realtimecontrollers.TicketIssuer
}

// RedisStore is the slice of the redis client the HTTP edge needs.
type RedisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Deps groups everything the API process hands to the router.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *metrics.HTTPMetrics
	Readiness    map[string]controllers.Pinger
	Redis        RedisStore
	Sessions     sessionManager
	Bookings     bookings.Service
	Recurring    recurring.Service
	Availability partners.Tracker
	Payments     webhookcontrollers.PaymentWebhookService
	PaymentGuard *paymentswebhook.IdempotencyGuard
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTPMetrics),
		middleware.CORS(cfg.API.AllowedOrigins),
	)

	ticketPolicy := middleware.NewRateLimitPolicy("realtime_ticket", cfg.RateLimit.TicketWindow, 0, cfg.RateLimit.TicketLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("payment_webhook", cfg.RateLimit.WebhookWindow, cfg.RateLimit.WebhookIPLimit, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Readiness))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, d.Redis, logg)).
			Post("/payments", webhookcontrollers.PaymentWebhook(d.Payments, cfg.Payments.WebhookSecret, d.PaymentGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		idem := middleware.Idempotency(d.Redis, logg)

		r.Route("/bookings", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleUser), idem).Post("/", bookingcontrollers.Create(d.Bookings, logg))
			r.With(middleware.RequireRole(logg, enums.RoleUser)).Get("/", bookingcontrollers.List(d.Bookings, logg))
			r.Get("/{bookingId}", bookingcontrollers.Detail(d.Bookings, logg))
			r.With(middleware.RequireRole(logg, enums.RoleUser, enums.RoleAdmin), idem).Post("/{bookingId}/cancel", bookingcontrollers.Cancel(d.Bookings, logg))
			r.With(middleware.RequireRole(logg, enums.RoleUser), idem).Post("/{bookingId}/feedback", bookingcontrollers.Feedback(d.Bookings, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RolePartner))
				r.Post("/{bookingId}/otp/start", bookingcontrollers.StartOTP(d.Bookings, logg))
				r.Post("/{bookingId}/otp/end", bookingcontrollers.EndOTP(d.Bookings, logg))
			})
		})

		r.Route("/recurring", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleUser))
			r.With(idem).Post("/", recurringcontrollers.Create(d.Recurring, logg))
			r.Get("/", recurringcontrollers.List(d.Recurring, logg))
			r.Get("/{patternId}", recurringcontrollers.Detail(d.Recurring, logg))
			r.Post("/{patternId}/pause", recurringcontrollers.Pause(d.Recurring, logg))
			r.Post("/{patternId}/resume", recurringcontrollers.Resume(d.Recurring, logg))
			r.With(idem).Post("/{patternId}/cancel", recurringcontrollers.Cancel(d.Recurring, logg))
		})

		r.With(middleware.RateLimit(ticketPolicy, d.Redis, logg)).
			Post("/realtime/tickets", realtimecontrollers.IssueTicket(d.Sessions, logg))

		r.Route("/partners/me/availability", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RolePartner))
			r.Get("/", partnercontrollers.Get(d.Availability, logg))
			r.Post("/", partnercontrollers.Toggle(d.Availability, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.With(idem).Post("/bookings/{bookingId}/broadcast", bookingcontrollers.Broadcast(d.Bookings, logg))
		})
	})

	return r
}
