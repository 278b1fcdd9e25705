package session

import (
	"time"

	"dialer-engine/internal/contacts"
)

// State is the call session lifecycle position.
//
// Transitions are strictly forward:
//
//	Idle → Connecting → Ringing → Answered → WrapUp → Ended
//	                 └──────┴────→ Failed
//
// No state is ever revisited. Events that do not match a valid transition
// from the current state are ignored and logged, never an error: duplicate
// and out-of-order webhook delivery is expected.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRinging    State = "ringing"
	StateAnswered   State = "answered"
	StateWrapUp     State = "wrap_up"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Terminal reports whether the session can no longer change.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Cause classifies why a session failed to connect.
type Cause string

const (
	CauseNone     Cause = ""
	CauseNoAnswer Cause = "no_answer"
	CauseBusy     Cause = "busy"
	CauseRejected Cause = "rejected"
	CauseFailed   Cause = "failed"
	CauseTimeout  Cause = "timeout"
)

// Session tracks one outbound call from dial request to termination.
//
// A Session is owned exclusively by the Manager for its lifetime and is
// immutable once terminal; the finalize path reads it but never writes.
type Session struct {
	ID string `json:"id"`

	// ExternalCallID is assigned by the gateway once the dial command is
	// acknowledged; empty until then.
	ExternalCallID string `json:"external_call_id,omitempty"`

	ContactID  string `json:"contact_id"`
	AgentID    string `json:"agent_id"`
	CampaignID string `json:"campaign_id"`

	State State `json:"state"`
	Cause Cause `json:"cause,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	AnsweredAt time.Time `json:"answered_at,omitempty"`
	EndedAt    time.Time `json:"ended_at,omitempty"`

	// LastSeq is the highest gateway sequence number applied.
	LastSeq uint64 `json:"last_seq,omitempty"`

	// LockToken is the contact lease held for this call; the finalize
	// path releases it once the record is persisted.
	LockToken contacts.LockToken `json:"-"`
}

// Duration is talk time only: Answered to Ended. Sessions that never
// reached Answered have duration 0.
func (s Session) Duration() time.Duration {
	if s.AnsweredAt.IsZero() || s.EndedAt.IsZero() {
		return 0
	}
	d := s.EndedAt.Sub(s.AnsweredAt)
	if d < 0 {
		return 0
	}
	return d
}

// Outcome maps the session's terminal condition to scheduler bookkeeping.
func (s Session) Outcome() contacts.Outcome {
	switch s.Cause {
	case CauseNoAnswer:
		return contacts.OutcomeNoAnswer
	case CauseBusy:
		return contacts.OutcomeBusy
	case CauseRejected:
		return contacts.OutcomeRejected
	case CauseTimeout:
		return contacts.OutcomeTimeout
	case CauseNone:
		if !s.AnsweredAt.IsZero() {
			return contacts.OutcomeContacted
		}
		return contacts.OutcomeFailed
	default:
		return contacts.OutcomeFailed
	}
}

// EvidenceRef is the audit handle for this call: the gateway call id.
// Empty when the dial was never acknowledged.
func (s Session) EvidenceRef() string {
	return s.ExternalCallID
}
