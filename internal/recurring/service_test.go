package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/homeserve-backend/pkg/db/types"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

var hubCenter = types.GeoPoint{Lat: 12.9716, Lng: 77.5946}

type fixture struct {
	svc  Service
	repo Repository
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	hub := models.Hub{
		ID:            uuid.New(),
		Name:          "Central",
		Lat:           hubCenter.Lat,
		Lng:           hubCenter.Lng,
		RadiusKm:      10,
		Active:        true,
		SupervisorIDs: dbtypes.UUIDArray{uuid.New()},
		Services: []models.HubService{{
			ID:               uuid.New(),
			ServiceID:        "deep-clean",
			Name:             "Deep clean",
			Price:            decimal.NewFromInt(500),
			EstimatedMinutes: 20,
			Active:           true,
		}},
	}
	hubRepo := hubs.NewRepository(conn)
	require.NoError(t, hubRepo.Create(context.Background(), &hub))
	dir, err := hubs.NewDirectory(hubRepo)
	require.NoError(t, err)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo, Hubs: dir, Clock: func() time.Time { return now }})
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, now: now}
}

func weeklyInput(userID uuid.UUID) CreateInput {
	return CreateInput{
		UserID:           userID,
		Name:             " Asha ",
		Address:          types.Address{Line1: "12 MG Road", City: "Bengaluru", PostalCode: "560001", Location: hubCenter},
		Items:            []hubs.ItemRequest{{ServiceID: "deep-clean", Quantity: 2}},
		Cadence:          enums.CadenceWeekly,
		Weekdays:         []int{5, 1, 5},
		TimeOfDayMinutes: 9 * 60,
	}
}

func TestCreateQuotesItemsAndNormalisesSelectors(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	pattern, err := f.svc.Create(context.Background(), weeklyInput(userID))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 5}, pattern.Weekdays)
	assert.Equal(t, enums.PatternStatusActive, pattern.Status)
	assert.True(t, pattern.NextScheduleDate.Equal(f.now))
	assert.True(t, pattern.StartDate.Equal(f.now))
	assert.Equal(t, "Asha", pattern.User.Name)
	require.Len(t, pattern.Items, 1)
	assert.True(t, pattern.Items[0].UnitPrice.Equal(decimal.NewFromInt(500)))

	listed, err := f.svc.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, pattern.ID, listed[0].ID)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	cases := map[string]func(in *CreateInput){
		"missing weekdays":  func(in *CreateInput) { in.Weekdays = nil },
		"weekday range":     func(in *CreateInput) { in.Weekdays = []int{7} },
		"monthly range":     func(in *CreateInput) { in.Cadence = enums.CadenceMonthly; in.MonthDays = []int{0} },
		"bad cadence":       func(in *CreateInput) { in.Cadence = "yearly" },
		"time of day":       func(in *CreateInput) { in.TimeOfDayMinutes = 24 * 60 },
		"missing address":   func(in *CreateInput) { in.Address.Line1 = "" },
		"end before start":  func(in *CreateInput) { e := f.now.Add(-time.Hour); in.EndDate = &e },
		"never occurs":      func(in *CreateInput) { e := f.now.Add(2 * time.Hour); in.EndDate = &e },
		"outside every hub": func(in *CreateInput) { in.Address.Location = types.GeoPoint{Lat: 28.6, Lng: 77.2} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := weeklyInput(userID)
			mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			require.Error(t, err)
		})
	}

	_, err := f.svc.Create(context.Background(), CreateInput{})
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
}

func TestPauseResumeCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := uuid.New()
	pattern, err := f.svc.Create(ctx, weeklyInput(userID))
	require.NoError(t, err)

	paused, err := f.svc.Pause(ctx, pattern.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PatternStatusPaused, paused.Status)

	again, err := f.svc.Pause(ctx, pattern.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PatternStatusPaused, again.Status)

	resumed, err := f.svc.Resume(ctx, pattern.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PatternStatusActive, resumed.Status)

	cancelled, err := f.svc.Cancel(ctx, pattern.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PatternStatusCancelled, cancelled.Status)

	_, err = f.svc.Resume(ctx, pattern.ID, userID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestForeignPatternIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pattern, err := f.svc.Create(ctx, weeklyInput(uuid.New()))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, pattern.ID, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = f.svc.Cancel(ctx, pattern.ID, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	_, err = f.svc.Get(ctx, uuid.New(), uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestRepositoryAdvanceIsGuarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pattern, err := f.svc.Create(ctx, weeklyInput(uuid.New()))
	require.NoError(t, err)

	due, err := f.repo.FindDue(ctx, f.now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	next := f.now.Add(48 * time.Hour)
	moved, err := f.repo.Advance(ctx, pattern.ID, pattern.NextScheduleDate, next, 1)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = f.repo.Advance(ctx, pattern.ID, pattern.NextScheduleDate, next.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.False(t, moved)

	stored, err := f.repo.FindByID(ctx, pattern.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextScheduleDate.Equal(next))
	assert.Equal(t, 1, stored.GeneratedCount)

	due, err = f.repo.FindDue(ctx, f.now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}
