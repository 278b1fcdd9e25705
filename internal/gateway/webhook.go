package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a call lifecycle notification from the gateway.
//
// Delivery is at-least-once and may be out of order; Seq is the gateway's
// monotonic per-session sequence number. Consumers must treat duplicates
// and stale sequences as no-ops.
type Event struct {
	// SessionID is our id, echoed back from the dial command. At least one
	// of SessionID and ExternalCallID must be present.
	SessionID      string `json:"session_id,omitempty"`
	ExternalCallID string `json:"external_call_id,omitempty"`

	Type EventType `json:"event_type"`

	// Seq is monotonic per session; 0 means the gateway did not number
	// this event.
	Seq uint64 `json:"seq,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Cause classifies completed/failed events: no_answer, busy, rejected, ...
	Cause string `json:"cause,omitempty"`

	// DurationSeconds is the gateway's view of talk time, if any.
	DurationSeconds int `json:"duration,omitempty"`
}

type EventType string

const (
	EventProgress  EventType = "progress"
	EventAnswered  EventType = "answered"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

func (t EventType) Valid() bool {
	switch t {
	case EventProgress, EventAnswered, EventCompleted, EventFailed:
		return true
	default:
		return false
	}
}

// ParseEvent decodes and validates a webhook payload.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("gateway event: invalid json: %w", err)
	}
	if ev.SessionID == "" && ev.ExternalCallID == "" {
		return Event{}, fmt.Errorf("gateway event: session_id or external_call_id required")
	}
	if !ev.Type.Valid() {
		return Event{}, fmt.Errorf("gateway event: unknown event_type %q", ev.Type)
	}
	return ev, nil
}

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Gateway-Signature"

// Sign computes the webhook signature for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want := Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(signature))
}
