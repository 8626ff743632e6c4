package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/pkg/db/dbtest"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

func seedBooking(t *testing.T, repo Repository) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		UserID:        uuid.New(),
		HubID:         uuid.New(),
		ScheduleKind:  enums.ScheduleKindInstant,
		ScheduledAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Currency:      "INR",
		BaseAmount:    decimal.NewFromInt(500),
		ExtraAmount:   decimal.Zero,
		TotalAmount:   decimal.NewFromInt(500),
		BookingStatus: enums.BookingStatusReadyForAssignment,
		PartnerStatus: enums.PartnerStatusNotAssigned,
		PaymentStatus: enums.PaymentStatusBaseAmountPaid,
		StartOTP:      "1234",
		EndOTP:        "5678",
	}
	require.NoError(t, repo.Create(context.Background(), booking))
	return booking
}

func TestUpdateWhereAppliesOnlyWhenGuardHolds(t *testing.T) {
	repo := NewRepository(dbtest.Open(t, dbtest.Bookings))
	ctx := context.Background()
	booking := seedBooking(t, repo)

	guard := Guard{
		BookingStatuses: []enums.BookingStatus{enums.BookingStatusReadyForAssignment},
		PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusNotAssigned},
	}
	ok, err := repo.UpdateWhere(ctx, booking.ID, guard, map[string]any{"partner_status": enums.PartnerStatusAssigned})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateWhere(ctx, booking.ID, guard, map[string]any{"partner_status": enums.PartnerStatusAssigned})
	require.NoError(t, err)
	assert.False(t, ok)

	other := uuid.New()
	ok, err = repo.UpdateWhere(ctx, booking.ID, Guard{PartnerID: &other}, map[string]any{"booking_status": enums.BookingStatusOngoing})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.UpdateWhere(ctx, booking.ID, guard, nil)
	assert.Error(t, err)
}

func TestLatestPartnerSnapshotReturnsNilWithoutHistory(t *testing.T) {
	repo := NewRepository(dbtest.Open(t, dbtest.Bookings))
	seedBooking(t, repo)

	got, err := repo.LatestPartnerSnapshot(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}
