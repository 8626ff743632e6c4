package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

type published struct {
	env        bus.Envelope
	routingKey string
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, env bus.Envelope, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{env: env, routingKey: routingKey})
	return nil
}

func intent(t *testing.T, kind string, data any) Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Message{Type: kind, Data: raw}
}

func TestTranslatorStampsIdentityFromConnection(t *testing.T) {
	pub := &recordingPublisher{}
	tr, err := NewTranslator(pub, testClock)
	require.NoError(t, err)

	partner := session.Identity{UserID: uuid.New(), Role: enums.RolePartner}
	bookingID := uuid.New()
	spoofed := uuid.New()

	msg := intent(t, IntentJobAccept, map[string]any{"bookingId": bookingID, "partnerId": spoofed, "name": "Ravi"})
	require.NoError(t, tr.Handle(context.Background(), partner, msg))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, string(enums.EventPartnerAcceptRequested), pub.sent[0].env.EventType)
	assert.Equal(t, bus.RoutingKey(string(enums.EventPartnerAcceptRequested)), pub.sent[0].routingKey)

	decoded, err := events.Decode(pub.sent[0].env)
	require.NoError(t, err)
	accept := decoded.(events.PartnerAcceptRequested)
	assert.Equal(t, partner.UserID, accept.PartnerID)
	assert.Equal(t, bookingID, accept.BookingID)
	assert.Equal(t, "Ravi", accept.Name)
	assert.True(t, accept.RequestedAt.Equal(testClock()))
}

func TestTranslatorEnforcesRoles(t *testing.T) {
	tr, err := NewTranslator(&recordingPublisher{}, testClock)
	require.NoError(t, err)

	user := session.Identity{UserID: uuid.New(), Role: enums.RoleUser}
	partner := session.Identity{UserID: uuid.New(), Role: enums.RolePartner}
	admin := session.Identity{UserID: uuid.New(), Role: enums.RoleAdmin}
	bookingID := uuid.New()

	cases := []struct {
		name string
		id   session.Identity
		msg  Message
		err  error
	}{
		{"user cannot accept", user, intent(t, IntentJobAccept, map[string]any{"bookingId": bookingID}), ErrIntentForbidden},
		{"partner cannot broadcast", partner, intent(t, IntentJobBroadcast, map[string]any{"bookingId": bookingID, "partnerIds": []uuid.UUID{partner.UserID}}), ErrIntentForbidden},
		{"partner cannot confirm arrival", partner, intent(t, IntentConfirmArrival, map[string]any{"bookingId": bookingID}), ErrIntentForbidden},
		{"unknown type", user, Message{Type: "teleport"}, ErrUnknownIntent},
		{"missing data", partner, Message{Type: IntentJobDecline}, ErrInvalidIntent},
		{"missing booking", partner, intent(t, IntentJobAccept, map[string]any{"name": "x"}), ErrInvalidIntent},
		{"broadcast without candidates", admin, intent(t, IntentJobBroadcast, map[string]any{"bookingId": bookingID}), ErrInvalidIntent},
		{"location out of range", partner, intent(t, IntentLocationUpdate, map[string]any{"location": map[string]any{"lat": 120, "lng": 10}}), ErrInvalidIntent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tr.Translate(tc.id, tc.msg)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestTranslatorBuildsEachIntent(t *testing.T) {
	tr, err := NewTranslator(&recordingPublisher{}, testClock)
	require.NoError(t, err)

	user := session.Identity{UserID: uuid.New(), Role: enums.RoleUser}
	partner := session.Identity{UserID: uuid.New(), Role: enums.RolePartner}
	admin := session.Identity{UserID: uuid.New(), Role: enums.RoleAdmin}
	bookingID := uuid.New()

	evt, err := tr.Translate(admin, intent(t, IntentJobBroadcast, map[string]any{"bookingId": bookingID, "partnerIds": []uuid.UUID{partner.UserID}}))
	require.NoError(t, err)
	broadcast := evt.(events.JobBroadcastRequested)
	assert.Equal(t, admin.UserID, broadcast.RequestedBy)
	assert.Equal(t, enums.RoleAdmin, broadcast.Role)

	evt, err = tr.Translate(partner, intent(t, IntentLocationUpdate, map[string]any{"bookingId": bookingID, "location": map[string]any{"lat": 12.97, "lng": 77.59}}))
	require.NoError(t, err)
	loc := evt.(events.PartnerLocationUpdated)
	assert.Equal(t, partner.UserID, loc.PartnerID)
	assert.True(t, loc.Location.ReportedAt.Equal(testClock()), "missing device time falls back to receipt time")

	reported := testClock().Add(-time.Minute)
	evt, err = tr.Translate(partner, intent(t, IntentPartnerEnroute, map[string]any{"bookingId": bookingID, "location": map[string]any{"lat": 12.97, "lng": 77.59, "reported_at": reported}}))
	require.NoError(t, err)
	enroute := evt.(events.PartnerEnrouteRequested)
	assert.True(t, enroute.Location.ReportedAt.Equal(reported))

	evt, err = tr.Translate(partner, intent(t, IntentAvailabilityToggle, map[string]any{"online": true}))
	require.NoError(t, err)
	assert.Equal(t, partner.UserID, evt.(events.PartnerAvailabilityToggled).PartnerID)

	evt, err = tr.Translate(user, intent(t, IntentConfirmArrival, map[string]any{"bookingId": bookingID}))
	require.NoError(t, err)
	arrival := evt.(events.ArrivalConfirmRequested)
	assert.Equal(t, user.UserID, arrival.UserID)
	assert.True(t, arrival.RequestedAt.Equal(testClock()))

	evt, err = tr.Translate(partner, intent(t, IntentJobDecline, map[string]any{"bookingId": bookingID, "reason": "too far"}))
	require.NoError(t, err)
	assert.Equal(t, "too far", evt.(events.PartnerJobDeclined).Reason)
}

func TestBroadcastIntentBecomesRequestNotOffer(t *testing.T) {
	pub := &recordingPublisher{}
	tr, err := NewTranslator(pub, testClock)
	require.NoError(t, err)

	supervisor := session.Identity{UserID: uuid.New(), Role: enums.RoleUser}
	bookingID := uuid.New()
	candidate := uuid.New()
	msg := intent(t, IntentJobBroadcast, map[string]any{
		"bookingId":   bookingID,
		"partnerIds":  []uuid.UUID{candidate},
		"requestedBy": uuid.New(),
		"role":        enums.RoleAdmin,
		"items":       []map[string]any{{"serviceId": "free-upgrade"}},
		"totalAmount": "0",
	})
	require.NoError(t, tr.Handle(context.Background(), supervisor, msg))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, string(enums.EventJobBroadcastRequested), pub.sent[0].env.EventType)
	assert.NotEqual(t, string(enums.EventBookingJobBroadcast), pub.sent[0].routingKey)

	decoded, err := events.Decode(pub.sent[0].env)
	require.NoError(t, err)
	req := decoded.(events.JobBroadcastRequested)
	assert.Equal(t, supervisor.UserID, req.RequestedBy)
	assert.Equal(t, enums.RoleUser, req.Role)
	assert.Equal(t, []uuid.UUID{candidate}, req.PartnerIDs)
	assert.NotContains(t, string(pub.sent[0].env.Data), "free-upgrade")
}

func TestInboundFrameAcceptsStringTimestamp(t *testing.T) {
	bookingID := uuid.New()
	frame := []byte(`{"type":"job-accept","data":{"bookingId":"` + bookingID.String() + `"},"timestamp":"2024-01-01T00:00:00Z"}`)

	msg, err := decodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", msg.Timestamp)

	ping, err := decodeMessage([]byte(`{"type":"ping","data":{},"timestamp":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, IntentPing, ping.Type)

	pub := &recordingPublisher{}
	tr, err := NewTranslator(pub, testClock)
	require.NoError(t, err)
	require.NoError(t, tr.Handle(context.Background(), session.Identity{UserID: uuid.New(), Role: enums.RolePartner}, msg))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, string(enums.EventPartnerAcceptRequested), pub.sent[0].env.EventType)
}

func TestPushTimestampIsRFC3339(t *testing.T) {
	msg, err := NewMessage("m1", PushPong, nil, testClock())
	require.NoError(t, err)

	parsed, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(testClock()))
	assert.Equal(t, time.UTC, parsed.Location())

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp":"`)
}
