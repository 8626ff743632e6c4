package bus

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Envelope is the wire format of every bus message.
type Envelope struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under eventType.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	if strings.TrimSpace(eventType) == "" {
		return Envelope{}, errors.New("event type required")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{EventType: eventType, Data: raw}, nil
}

// ParseEnvelope decodes a message body, rejecting bodies without an event type.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, errors.New("envelope missing eventType")
	}
	return env, nil
}

// NewMessageID builds the per-message id: <eventType>-<unix millis>-<random hex>.
func NewMessageID(eventType string, now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d-%08x", eventType, now.UnixMilli(), now.UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s-%d-%s", eventType, now.UnixMilli(), hex.EncodeToString(buf))
}

// StableMessageID derives a message id from a persisted record so every publish
// attempt of that record carries the same id.
func StableMessageID(eventType string, at time.Time, recordID string) string {
	suffix := strings.ReplaceAll(recordID, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s-%d-%s", eventType, at.UnixMilli(), suffix)
}

// RoutingKey derives the routing key for an event type. Event types are already
// dot-hierarchical so the mapping is the identity, normalised to lower case.
func RoutingKey(eventType string) string {
	return strings.ToLower(strings.TrimSpace(eventType))
}

// MatchRoutingKey reports whether key matches a topic binding pattern, where
// "*" matches exactly one word and "#" matches zero or more words.
func MatchRoutingKey(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
