package audit

import "time"

// Event is an immutable, append-only operational log record for the dialer.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; do not block dial or finalize flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table dialer_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	ContactID  string `json:"contact_id,omitempty" db:"contact_id"`
	AgentID    string `json:"agent_id,omitempty" db:"agent_id"`
	SessionID  string `json:"session_id,omitempty" db:"session_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeDialIssued      EventType = "dial_issued"
	EventTypeLockReclaimed   EventType = "lock_reclaimed"
	EventTypeEventIgnored    EventType = "event_ignored"
	EventTypeRecordFinalized EventType = "record_finalized"
	EventTypeAgentStatus     EventType = "agent_status"
)
