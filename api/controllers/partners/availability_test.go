package partners

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/api/middleware"
	internalpartners "github.com/angelmondragon/homeserve-backend/internal/partners"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
)

type stubTracker struct {
	internalpartners.Tracker

	calls    []string
	breakErr error
}

func (s *stubTracker) SetOnline(ctx context.Context, partnerID uuid.UUID, online bool) (*models.PartnerAvailability, error) {
	s.calls = append(s.calls, "online")
	status := enums.AvailabilityOffline
	if online {
		status = enums.AvailabilityIdle
	}
	return &models.PartnerAvailability{PartnerID: partnerID, Online: online, Status: status}, nil
}

func (s *stubTracker) SetBreak(ctx context.Context, partnerID uuid.UUID, onBreak bool) (*models.PartnerAvailability, error) {
	s.calls = append(s.calls, "break")
	if s.breakErr != nil {
		return nil, s.breakErr
	}
	return &models.PartnerAvailability{PartnerID: partnerID, Online: true, Status: enums.AvailabilityBreak}, nil
}

func (s *stubTracker) Get(ctx context.Context, partnerID uuid.UUID) (*models.PartnerAvailability, error) {
	return &models.PartnerAvailability{PartnerID: partnerID, Status: enums.AvailabilityOffline}, nil
}

func partnerRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/partners/me/availability", strings.NewReader(body))
	return req.WithContext(middleware.WithActor(req.Context(), uuid.New(), enums.RolePartner))
}

func TestToggleAppliesOnlineBeforeBreak(t *testing.T) {
	tracker := &stubTracker{}
	rec := httptest.NewRecorder()
	Toggle(tracker, nil).ServeHTTP(rec, partnerRequest(http.MethodPost, `{"online":true,"on_break":true}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"online", "break"}, tracker.calls)
	assert.Contains(t, rec.Body.String(), `"status":"BREAK"`)
}

func TestToggleRequiresAFlag(t *testing.T) {
	tracker := &stubTracker{}
	rec := httptest.NewRecorder()
	Toggle(tracker, nil).ServeHTTP(rec, partnerRequest(http.MethodPost, `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, tracker.calls)
}

func TestToggleSurfacesStateConflict(t *testing.T) {
	tracker := &stubTracker{breakErr: pkgerrors.New(pkgerrors.CodeStateConflict, "partner cannot change break during a booking")}
	rec := httptest.NewRecorder()
	Toggle(tracker, nil).ServeHTTP(rec, partnerRequest(http.MethodPost, `{"on_break":true}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetReturnsDocument(t *testing.T) {
	rec := httptest.NewRecorder()
	Get(&stubTracker{}, nil).ServeHTTP(rec, partnerRequest(http.MethodGet, ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"online":false`)
	assert.NotContains(t, rec.Body.String(), `"location"`)
}
