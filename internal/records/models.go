package records

import "time"

// CallRecord is the immutable business record of one finalized call.
//
// Exactly one record may exist per session; SessionID is the idempotency
// key. Records are write-once: finalize creates them, nothing updates them.
type CallRecord struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`

	CampaignID string `json:"campaign_id" db:"campaign_id"`
	ContactID  string `json:"contact_id" db:"contact_id"`
	AgentID    string `json:"agent_id" db:"agent_id"`

	// DispositionID and Disposition are the catalog entry as resolved,
	// not as the agent typed it.
	DispositionID string `json:"disposition_id" db:"disposition_id"`
	Disposition   string `json:"disposition" db:"disposition"`
	Notes         string `json:"notes,omitempty" db:"notes"`

	// DurationSeconds is talk time (answer to end); zero when the call was
	// never answered.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// EvidenceRef points at the proof-of-call artifact, the gateway call id.
	EvidenceRef string `json:"evidence_ref" db:"evidence_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
