package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

type delivered struct {
	to  uuid.UUID
	msg Message
}

type recordingDeliverer struct {
	mu    sync.Mutex
	out   []delivered
	fails map[uuid.UUID]error
}

func (r *recordingDeliverer) Deliver(_ context.Context, userID uuid.UUID, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fails[userID]; err != nil {
		return err
	}
	r.out = append(r.out, delivered{to: userID, msg: msg})
	return nil
}

func (r *recordingDeliverer) take() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.out
	r.out = nil
	return out
}

type noopSubscriber struct {
	spec bus.QueueSpec
}

func (n *noopSubscriber) Subscribe(_ context.Context, spec bus.QueueSpec, _ bus.Handler) error {
	n.spec = spec
	return nil
}

type bridgeFixture struct {
	bridge       *Bridge
	deliverer    *recordingDeliverer
	participants *Participants
	sub          *noopSubscriber
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	store := newFakeStore()
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	participants, err := NewParticipants(store)
	require.NoError(t, err)
	deliverer := &recordingDeliverer{fails: map[uuid.UUID]error{}}
	sub := &noopSubscriber{}
	bridge, err := NewBridge(BridgeParams{
		Deliverer:    deliverer,
		Participants: participants,
		Subscriber:   sub,
		Idempotency:  manager,
		Queue:        "gateway.gw-test",
		Logger:       testLogger(),
		Clock:        testClock,
	})
	require.NoError(t, err)
	return &bridgeFixture{bridge: bridge, deliverer: deliverer, participants: participants, sub: sub}
}

func eventDelivery(t *testing.T, evt events.Event) bus.Delivery {
	t.Helper()
	env, err := events.Envelope(evt)
	require.NoError(t, err)
	return bus.Delivery{
		MessageID:  bus.NewMessageID(env.EventType, testClock()),
		RoutingKey: bus.RoutingKey(env.EventType),
		Envelope:   env,
	}
}

func TestBridgeRunBindsInstanceQueue(t *testing.T) {
	fx := newBridgeFixture(t)
	require.NoError(t, fx.bridge.Run(context.Background()))
	assert.Equal(t, "gateway.gw-test", fx.sub.spec.Name)
	assert.Equal(t, BridgePatterns, fx.sub.spec.Patterns)
	assert.Positive(t, fx.sub.spec.Expires)
}

func TestBridgeRoutesAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	fx := newBridgeFixture(t)
	h := fx.bridge.Handler()

	bookingID, userID, partnerID, loser := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	broadcast := eventDelivery(t, events.JobBroadcast{BookingID: bookingID, PartnerIDs: []uuid.UUID{partnerID, loser}})
	require.NoError(t, h.Handle(ctx, broadcast))
	pushes := fx.deliverer.take()
	require.Len(t, pushes, 2)
	for _, p := range pushes {
		assert.Equal(t, PushNewJobRequest, p.msg.Type)
		assert.Equal(t, broadcast.MessageID, p.msg.ID)
	}

	assigned := eventDelivery(t, events.PartnerAssigned{
		BookingID: bookingID,
		UserID:    userID,
		PartnerID: partnerID,
		Partner:   types.PartnerSnapshot{ID: partnerID.String(), Name: "Ravi"},
		User:      types.UserSnapshot{ID: userID.String(), Name: "Asha"},
	})
	require.NoError(t, h.Handle(ctx, assigned))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 2)
	assert.Equal(t, userID, pushes[0].to)
	assert.Contains(t, string(pushes[0].msg.Data), "Ravi")
	assert.Equal(t, partnerID, pushes[1].to)
	assert.Contains(t, string(pushes[1].msg.Data), "Asha")

	cachedUser, cachedPartner, err := fx.participants.Lookup(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, userID, cachedUser)
	assert.Equal(t, partnerID, cachedPartner)

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.AssignmentRejected{BookingID: bookingID, PartnerID: loser})))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, loser, pushes[0].to)
	assert.Equal(t, PushJobTaken, pushes[0].msg.Type)

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.BookingPartnerEnroute{BookingID: bookingID, UserID: userID, PartnerID: partnerID, EtaMinutes: 9})))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, userID, pushes[0].to)
	assert.Equal(t, PushPartnerEnroute, pushes[0].msg.Type)

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerLocationUpdated{
		BookingID: &bookingID,
		PartnerID: partnerID,
		Location:  types.LiveLocation{GeoPoint: types.GeoPoint{Lat: 12.97, Lng: 77.59}, ReportedAt: testClock()},
	})))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, userID, pushes[0].to)
	assert.Equal(t, PushPartnerLocation, pushes[0].msg.Type)

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.BookingPartnerArrived{BookingID: bookingID, UserID: userID, PartnerID: partnerID})))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, partnerID, pushes[0].to)
	assert.Equal(t, PushArrivalConfirmed, pushes[0].msg.Type)

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.ServiceCompleted{BookingID: bookingID, UserID: userID, PartnerID: partnerID})))
	pushes = fx.deliverer.take()
	require.Len(t, pushes, 2)
	assert.Equal(t, PushServiceCompleted, pushes[0].msg.Type)

	cachedUser, _, err = fx.participants.Lookup(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, cachedUser, "completion clears the cache")
}

func TestBridgeSkipsDuplicateDeliveries(t *testing.T) {
	ctx := context.Background()
	fx := newBridgeFixture(t)
	h := fx.bridge.Handler()

	d := eventDelivery(t, events.AssignmentRejected{BookingID: uuid.New(), PartnerID: uuid.New()})
	require.NoError(t, h.Handle(ctx, d))
	require.NoError(t, h.Handle(ctx, d))
	assert.Len(t, fx.deliverer.take(), 1)
}

func TestBridgeRetriesWhenDeliveryFails(t *testing.T) {
	ctx := context.Background()
	fx := newBridgeFixture(t)
	h := fx.bridge.Handler()

	userID := uuid.New()
	fx.deliverer.fails[userID] = errors.New("cache down")
	d := eventDelivery(t, events.BookingCancelled{BookingID: uuid.New(), UserID: userID})

	err := h.Handle(ctx, d)
	require.Error(t, err)
	assert.NotErrorIs(t, err, bus.ErrDrop)

	delete(fx.deliverer.fails, userID)
	require.NoError(t, h.Handle(ctx, d), "redelivery runs again after a failure")
	pushes := fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, PushBookingCancelled, pushes[0].msg.Type)
}

func TestBridgeIgnoresEventsWithoutAudience(t *testing.T) {
	ctx := context.Background()
	fx := newBridgeFixture(t)
	h := fx.bridge.Handler()

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerLocationUpdated{PartnerID: uuid.New(), Location: types.LiveLocation{ReportedAt: testClock()}})))
	assert.Empty(t, fx.deliverer.take())
}

func TestBridgeForwardsOnlyAssignedPartnerTravel(t *testing.T) {
	ctx := context.Background()
	fx := newBridgeFixture(t)
	h := fx.bridge.Handler()

	bookingID, userID, partnerID, rogue := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	loc := types.LiveLocation{GeoPoint: types.GeoPoint{Lat: 12.97, Lng: 77.59}, ReportedAt: testClock()}

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerLocationUpdated{BookingID: &bookingID, PartnerID: rogue, Location: loc})))
	assert.Empty(t, fx.deliverer.take(), "no cached assignment yet")

	require.NoError(t, fx.participants.Remember(ctx, bookingID, userID, partnerID))
	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerLocationUpdated{BookingID: &bookingID, PartnerID: rogue, Location: loc})))
	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerEnrouteRequested{BookingID: bookingID, PartnerID: rogue})))
	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.ArrivalConfirmRequested{BookingID: bookingID, UserID: uuid.New()})))
	assert.Empty(t, fx.deliverer.take(), "unconfirmed requests never reach the other party")

	require.NoError(t, h.Handle(ctx, eventDelivery(t, events.PartnerLocationUpdated{BookingID: &bookingID, PartnerID: partnerID, Location: loc})))
	pushes := fx.deliverer.take()
	require.Len(t, pushes, 1)
	assert.Equal(t, userID, pushes[0].to)
}
