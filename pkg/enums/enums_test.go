package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartnerStatusAdvancesOneStep(t *testing.T) {
	assert.True(t, PartnerStatusNotAssigned.CanAdvanceTo(PartnerStatusAssigned))
	assert.True(t, PartnerStatusAssigned.CanAdvanceTo(PartnerStatusEnroute))
	assert.True(t, PartnerStatusEnroute.CanAdvanceTo(PartnerStatusArrived))

	assert.False(t, PartnerStatusNotAssigned.CanAdvanceTo(PartnerStatusEnroute))
	assert.False(t, PartnerStatusAssigned.CanAdvanceTo(PartnerStatusArrived))
	assert.False(t, PartnerStatusArrived.CanAdvanceTo(PartnerStatusNotAssigned))

	_, ok := PartnerStatusArrived.Next()
	assert.False(t, ok)
}

func TestBookingStatusCancellable(t *testing.T) {
	assert.True(t, BookingStatusCreated.Cancellable())
	assert.True(t, BookingStatusReadyForAssignment.Cancellable())
	assert.True(t, BookingStatusTracking.Cancellable())
	assert.False(t, BookingStatusOngoing.Cancellable())
	assert.False(t, BookingStatusCompleted.Cancellable())
	assert.False(t, BookingStatusCancelled.Cancellable())
}

func TestAvailabilityRequiresBooking(t *testing.T) {
	for _, s := range []AvailabilityStatus{AvailabilityAssigned, AvailabilityEnroute, AvailabilityArrived, AvailabilityBusy} {
		assert.True(t, s.RequiresBooking(), s)
	}
	for _, s := range []AvailabilityStatus{AvailabilityOffline, AvailabilityIdle, AvailabilityBreak} {
		assert.False(t, s.RequiresBooking(), s)
	}
}

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType("partner.location.updated")
	require.NoError(t, err)
	assert.Equal(t, EventPartnerLocationUpdated, got)

	_, err = ParseEventType("partner.teleported")
	assert.Error(t, err)
	assert.Len(t, EventTypes(), 18)
}
