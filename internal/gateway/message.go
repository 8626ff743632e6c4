// Package gateway holds client WebSocket connections, translates client intents
// into bus events, and pushes bus events back to the users they concern.
package gateway

import (
	"encoding/json"
	"time"
)

// Push types sent to clients.
const (
	PushConnectionEstablished = "connection-established"
	PushReadyForAssignment    = "booking-ready-for-assignment"
	PushNewJobRequest         = "new-job-request"
	PushPartnerAssigned       = "booking-partner-assigned"
	PushJobTaken              = "job-taken"
	PushPartnerEnroute        = "partner-enroute"
	PushPartnerLocation       = "partner-location-update"
	PushArrivalConfirmed      = "arrival-confirmed"
	PushServiceStarted        = "service-started"
	PushServiceCompleted      = "service-completed"
	PushBookingCancelled      = "booking-cancelled"
	PushAvailabilityUpdated   = "availability-updated"
	PushPong                  = "pong"
	PushError                 = "error"
)

// Intent types accepted from clients.
const (
	IntentJobBroadcast       = "job-broadcast"
	IntentJobAccept          = "job-accept"
	IntentJobDecline         = "job-decline"
	IntentPartnerEnroute     = "partner-enroute"
	IntentLocationUpdate     = "partner-location-update"
	IntentAvailabilityToggle = "partner-availability-toggle"
	IntentConfirmArrival     = "user-confirms-arrival"
	IntentPing               = "ping"
)

// Message is the frame exchanged with clients in both directions. ID is set on
// pushes that originate from a bus message and is used to dedupe offline replay.
// Timestamp is RFC 3339 in UTC.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewMessage builds a push with data encoded as JSON.
func NewMessage(id, msgType string, data any, now time.Time) (Message, error) {
	msg := Message{ID: id, Type: msgType, Timestamp: now.UTC().Format(time.RFC3339Nano)}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	msg.Data = raw
	return msg, nil
}

func errorMessage(code, detail string, now time.Time) Message {
	msg, _ := NewMessage("", PushError, map[string]string{"code": code, "message": detail}, now)
	return msg
}

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(payload, &msg)
	return msg, err
}
