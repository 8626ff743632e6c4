package recurring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/api/middleware"
	internalrecurring "github.com/angelmondragon/homeserve-backend/internal/recurring"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
)

type stubRecurring struct {
	internalrecurring.Service

	created internalrecurring.CreateInput
	paused  uuid.UUID
	owner   uuid.UUID
}

func (s *stubRecurring) Create(ctx context.Context, input internalrecurring.CreateInput) (*models.RecurringPattern, error) {
	s.created = input
	return &models.RecurringPattern{ID: uuid.New(), UserID: input.UserID, Cadence: input.Cadence, Weekdays: input.Weekdays, Status: enums.PatternStatusActive}, nil
}

func (s *stubRecurring) Pause(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error) {
	if userID != s.owner {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pattern not found")
	}
	s.paused = id
	return &models.RecurringPattern{ID: id, UserID: userID, Status: enums.PatternStatusPaused}, nil
}

func actorRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithActor(req.Context(), userID, enums.RoleUser))
}

func TestCreateForwardsSchedule(t *testing.T) {
	svc := &stubRecurring{}
	userID := uuid.New()
	body := `{
		"name": "Asha",
		"address": {"line1": "1 Main St", "city": "Austin", "postal_code": "78701", "location": {"lat": 30.26, "lng": -97.74}},
		"items": [{"service_id": "deep-clean", "quantity": 1}],
		"cadence": "weekly",
		"weekdays": [3],
		"time_of_day_minutes": 540,
		"start_date": "2026-03-02T00:00:00Z"
	}`
	rec := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/recurring", body, userID))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, userID, svc.created.UserID)
	assert.Equal(t, enums.CadenceWeekly, svc.created.Cadence)
	assert.Equal(t, []int{3}, svc.created.Weekdays)
	assert.Equal(t, 540, svc.created.TimeOfDayMinutes)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)
}

func TestCreateRejectsOutOfRangeWeekday(t *testing.T) {
	body := `{
		"name": "Asha",
		"address": {"line1": "1 Main St", "city": "Austin", "postal_code": "78701", "location": {"lat": 30.26, "lng": -97.74}},
		"items": [{"service_id": "deep-clean", "quantity": 1}],
		"cadence": "weekly",
		"weekdays": [9],
		"start_date": "2026-03-02T00:00:00Z"
	}`
	rec := httptest.NewRecorder()
	Create(&stubRecurring{}, nil).ServeHTTP(rec, actorRequest(http.MethodPost, "/api/v1/recurring", body, uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseScopesToOwner(t *testing.T) {
	owner := uuid.New()
	svc := &stubRecurring{owner: owner}
	router := chi.NewRouter()
	router.Post("/recurring/{patternId}/pause", Pause(svc, nil))
	patternID := uuid.New()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/recurring/"+patternID.String()+"/pause", "", owner))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, patternID, svc.paused)
	assert.Contains(t, rec.Body.String(), `"status":"paused"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, actorRequest(http.MethodPost, "/recurring/"+uuid.NewString()+"/pause", "", uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
