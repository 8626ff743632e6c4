package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

var (
	ErrUnknownIntent   = errors.New("unknown message type")
	ErrIntentForbidden = errors.New("message type not allowed for role")
	ErrInvalidIntent   = errors.New("invalid message data")
)

// intentRoles lists which client roles may send each intent. Hub supervisors
// hold the user role; the booking service checks hub membership.
var intentRoles = map[string][]enums.ClientRole{
	IntentJobBroadcast:       {enums.RoleAdmin, enums.RoleUser},
	IntentJobAccept:          {enums.RolePartner},
	IntentJobDecline:         {enums.RolePartner},
	IntentPartnerEnroute:     {enums.RolePartner},
	IntentLocationUpdate:     {enums.RolePartner},
	IntentAvailabilityToggle: {enums.RolePartner},
	IntentConfirmArrival:     {enums.RoleUser},
}

func allowed(roles []enums.ClientRole, role enums.ClientRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Translator turns client intents into bus events. It never decides booking
// outcomes; the owning services do.
type Translator struct {
	pub   events.Publisher
	clock func() time.Time
}

func NewTranslator(pub events.Publisher, clock func() time.Time) (*Translator, error) {
	if pub == nil {
		return nil, fmt.Errorf("event publisher required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Translator{pub: pub, clock: clock}, nil
}

// Handle publishes the event behind msg on behalf of id.
func (t *Translator) Handle(ctx context.Context, id session.Identity, msg Message) error {
	evt, err := t.Translate(id, msg)
	if err != nil {
		return err
	}
	return events.Publish(ctx, t.pub, evt)
}

// Translate builds the event for msg, stamping identity and time from the
// connection rather than trusting the payload.
func (t *Translator) Translate(id session.Identity, msg Message) (events.Event, error) {
	roles, ok := intentRoles[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, msg.Type)
	}
	if !allowed(roles, id.Role) {
		return nil, fmt.Errorf("%w: %q", ErrIntentForbidden, msg.Type)
	}
	now := t.clock().UTC()

	var evt events.Event
	switch msg.Type {
	case IntentJobBroadcast:
		var e events.JobBroadcastRequested
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.RequestedBy = id.UserID
		e.Role = id.Role
		e.RequestedAt = now
		evt = e
	case IntentJobAccept:
		var e events.PartnerAcceptRequested
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.PartnerID = id.UserID
		e.RequestedAt = now
		evt = e
	case IntentJobDecline:
		var e events.PartnerJobDeclined
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.PartnerID = id.UserID
		evt = e
	case IntentPartnerEnroute:
		var e events.PartnerEnrouteRequested
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.PartnerID = id.UserID
		if e.Location != nil && e.Location.ReportedAt.IsZero() {
			e.Location.ReportedAt = now
		}
		evt = e
	case IntentLocationUpdate:
		var e events.PartnerLocationUpdated
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.PartnerID = id.UserID
		if e.Location.ReportedAt.IsZero() {
			e.Location.ReportedAt = now
		}
		if !e.Location.Valid() {
			return nil, fmt.Errorf("%w: location out of range", ErrInvalidIntent)
		}
		evt = e
	case IntentAvailabilityToggle:
		var e events.PartnerAvailabilityToggled
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.PartnerID = id.UserID
		e.ToggledAt = now
		evt = e
	case IntentConfirmArrival:
		var e events.ArrivalConfirmRequested
		if err := decodeIntent(msg.Data, &e); err != nil {
			return nil, err
		}
		e.UserID = id.UserID
		e.RequestedAt = now
		evt = e
	}
	if err := events.Validate(evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return evt, nil
}

func decodeIntent(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: data required", ErrInvalidIntent)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return nil
}
