package paymentswebhook

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
)

type recordingConfirmer struct {
	inputs []bookings.PaymentInput
}

func (r *recordingConfirmer) ConfirmPayment(ctx context.Context, input bookings.PaymentInput) (*models.Booking, error) {
	r.inputs = append(r.inputs, input)
	return &models.Booking{ID: input.BookingID}, nil
}

func TestHandleEventConfirmsSucceededPayment(t *testing.T) {
	confirmer := &recordingConfirmer{}
	svc, err := NewService(confirmer, nil)
	require.NoError(t, err)

	bookingID := uuid.New()
	err = svc.HandleEvent(context.Background(), Event{
		ID:        "evt_1",
		Type:      EventPaymentSucceeded,
		BookingID: bookingID,
		Stage:     enums.PaymentStageBase,
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	require.Len(t, confirmer.inputs, 1)
	assert.Equal(t, bookingID, confirmer.inputs[0].BookingID)
	assert.Equal(t, enums.PaymentStageBase, confirmer.inputs[0].Stage)
	assert.Equal(t, "evt_1", confirmer.inputs[0].Reference)
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	confirmer := &recordingConfirmer{}
	svc, err := NewService(confirmer, nil)
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), Event{ID: "evt_2", Type: EventPaymentFailed, BookingID: uuid.New()}))
	require.NoError(t, svc.HandleEvent(context.Background(), Event{ID: "evt_3", Type: "refund.created"}))
	assert.Empty(t, confirmer.inputs)
}

func TestHandleEventValidatesPayload(t *testing.T) {
	svc, err := NewService(&recordingConfirmer{}, nil)
	require.NoError(t, err)

	cases := map[string]Event{
		"missing id":      {Type: EventPaymentSucceeded, BookingID: uuid.New(), Stage: enums.PaymentStageBase},
		"missing booking": {ID: "evt", Type: EventPaymentSucceeded, Stage: enums.PaymentStageBase},
		"bad stage":       {ID: "evt", Type: EventPaymentSucceeded, BookingID: uuid.New(), Stage: "partial"},
		"negative amount": {ID: "evt", Type: EventPaymentSucceeded, BookingID: uuid.New(), Stage: enums.PaymentStageFull, Amount: decimal.NewFromInt(-1)},
	}
	for name, evt := range cases {
		err := svc.HandleEvent(context.Background(), evt)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), name)
	}
}
