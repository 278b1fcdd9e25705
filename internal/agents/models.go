package agents

import "time"

// Status is the agent availability state.
//
// Offline, Away and Available are set by the agent through the API.
// Busy is engine-owned: it is entered when a dial is issued on the agent's
// behalf and left when that session reaches a terminal state. Agents can
// still go Offline or Away mid-call; the live session is unaffected, the
// agent just stops receiving new work afterwards.
type Status string

const (
	StatusOffline   Status = "offline"
	StatusAway      Status = "away"
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
)

func (s Status) valid() bool {
	switch s {
	case StatusOffline, StatusAway, StatusAvailable, StatusBusy:
		return true
	default:
		return false
	}
}

// Agent is the engine's view of one logged-in agent.
type Agent struct {
	ID     string `json:"id"`
	Status Status `json:"status"`

	// CampaignID is the campaign this agent pulls work from while
	// Available. Required to go Available, cleared on Offline.
	CampaignID string `json:"campaign_id,omitempty"`

	// ActiveSessionID is the most recently issued session, cleared when it
	// terminates.
	ActiveSessionID string `json:"active_session_id,omitempty"`

	// ActiveCalls counts in-flight sessions. Incremented at dial issue,
	// decremented at terminal transition, never on intermediate events.
	ActiveCalls int `json:"active_calls"`

	// MaxConcurrentCalls is the slot capacity: the agent goes Busy when
	// ActiveCalls reaches it.
	MaxConcurrentCalls int `json:"max_concurrent_calls"`

	UpdatedAt time.Time `json:"updated_at"`
}
