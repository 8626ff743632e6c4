package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	paymentswebhook "github.com/angelmondragon/homeserve-backend/internal/webhooks/payments"
	pkgAuth "github.com/angelmondragon/homeserve-backend/pkg/auth"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessionManager struct{}

func (stubSessionManager) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

func (stubSessionManager) IssueRealtimeToken(ctx context.Context, userID uuid.UUID, role enums.ClientRole) (string, time.Time, error) {
	return "tok", time.Now().Add(time.Hour), nil
}

type stubBookings struct {
	bookings.Service
	mu      sync.Mutex
	creates int
}

func (s *stubBookings) Create(ctx context.Context, input bookings.CreateInput) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	return &models.Booking{ID: uuid.New(), UserID: input.UserID, ScheduleKind: input.ScheduleKind}, nil
}

type stubPayments struct{}

func (stubPayments) HandleEvent(ctx context.Context, event paymentswebhook.Event) error { return nil }

type memoryRedis struct {
	mu       sync.Mutex
	data     map[string]string
	counters map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryRedis) RateLimitKey(scope string) string { return "rl:" + scope }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "homeserve", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			TicketWindow:   time.Minute,
			TicketLimit:    2,
			WebhookWindow:  time.Minute,
			WebhookIPLimit: 100,
		},
		Payments: config.PaymentsConfig{WebhookSecret: "whsec"},
		API:      config.APIConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

type fixture struct {
	cfg      *config.Config
	handler  http.Handler
	bookings *stubBookings
}

func newFixture(t *testing.T, readiness map[string]controllers.Pinger) fixture {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	store := newMemoryRedis()
	guard, err := paymentswebhook.NewIdempotencyGuard(store, time.Hour, "payment-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	svc := &stubBookings{}
	handler := NewRouter(Deps{
		Config:       cfg,
		Gatherer:     reg,
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		Readiness:    readiness,
		Redis:        store,
		Sessions:     stubSessionManager{},
		Bookings:     svc,
		Payments:     stubPayments{},
		PaymentGuard: guard,
	})
	return fixture{cfg: cfg, handler: handler, bookings: svc}
}

func (f fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f fixture) bearer(t *testing.T, role enums.ClientRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("down")}})

	if rec := f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready: expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpointExportsHTTPCounters(t *testing.T) {
	f := newFixture(t, nil)
	f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("http metrics missing from exposition")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name   string
		method string
		path   string
		role   enums.ClientRole
	}{
		{"partner cannot book", http.MethodPost, "/api/v1/bookings", enums.RolePartner},
		{"user cannot verify otp", http.MethodPost, "/api/v1/bookings/" + uuid.NewString() + "/otp/start", enums.RoleUser},
		{"user cannot toggle availability", http.MethodPost, "/api/v1/partners/me/availability", enums.RoleUser},
		{"partner cannot broadcast", http.MethodPost, "/api/v1/admin/bookings/" + uuid.NewString() + "/broadcast", enums.RolePartner},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{}`))
		req.Header.Set("Authorization", f.bearer(t, tc.role))
		if rec := f.do(req); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", tc.name, rec.Code)
		}
	}
}

func TestCreateBookingRequiresAndHonoursIdempotencyKey(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"name":"Asha","address":{"line1":"1 Main St","city":"Austin","postal_code":"78701","location":{"lat":30.26,"lng":-97.74}},"items":[{"service_id":"deep-clean","quantity":1}],"schedule_kind":"instant"}`
	auth := f.bearer(t, enums.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("Authorization", auth)
	if rec := f.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", "key-1")
		if rec := f.do(req); rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if f.bookings.creates != 1 {
		t.Fatalf("expected one create, got %d", f.bookings.creates)
	}
}

func TestRealtimeTicketRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	auth := f.bearer(t, enums.RoleUser)
	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/tickets", nil)
		req.Header.Set("Authorization", auth)
		last = f.do(req).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third ticket to be throttled, got %d", last)
	}
}

func TestPaymentWebhookRejectsUnsignedPayload(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewBufferString(`{"id":"evt"}`))
	if rec := f.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
