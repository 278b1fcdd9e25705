package contacts

import "time"

// Contact is a dialable record owned by a campaign.
//
// Lock invariant: LockOwner is set iff LockExpiresAt is in the future.
// A contact whose lock has expired is treated as unlocked by every reader;
// the sweep clears the stale fields lazily.
//
// Lifecycle: created by data import; mutated by the scheduler (lock/unlock,
// attempt bookkeeping) and the finalize path (final status); never deleted
// except by explicit campaign reset.

type Contact struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	// Phone is E.164.
	Phone string `json:"phone" db:"phone"`

	Status ContactStatus `json:"status" db:"status"`

	AttemptCount  int       `json:"attempt_count" db:"attempt_count"`
	LastOutcome   Outcome   `json:"last_outcome,omitempty" db:"last_outcome"`
	NextAttemptAt time.Time `json:"next_attempt_at" db:"next_attempt_at"`

	// EnqueuedAt is the original import/enqueue time; FIFO tie-breaker.
	EnqueuedAt time.Time `json:"enqueued_at" db:"enqueued_at"`

	LockOwner     string    `json:"lock_owner,omitempty" db:"lock_owner"`
	LockExpiresAt time.Time `json:"lock_expires_at,omitempty" db:"lock_expires_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Locked reports whether a valid (non-expired) lease exists at now.
func (c Contact) Locked(now time.Time) bool {
	return c.LockOwner != "" && now.Before(c.LockExpiresAt)
}

// Dialable reports whether the contact is eligible for selection at now,
// ignoring lock state (the lock is checked atomically at acquisition).
func (c Contact) Dialable(now time.Time) bool {
	if c.Status != StatusNew && c.Status != StatusQueued {
		return false
	}
	return !c.NextAttemptAt.After(now)
}

type ContactStatus string

const (
	StatusNew    ContactStatus = "new"
	StatusQueued ContactStatus = "queued"
	StatusLocked ContactStatus = "locked"

	// StatusContacted retires a contact after a successful conversation.
	StatusContacted ContactStatus = "contacted"

	// StatusUnreachable retires a contact that can never be reached
	// (invalid number and the like), without claiming success.
	StatusUnreachable ContactStatus = "unreachable"

	// StatusExhausted retires a contact whose attempt budget ran out.
	StatusExhausted ContactStatus = "exhausted"
)

// Outcome classifies how a dial attempt ended.
type Outcome string

const (
	OutcomeNoAnswer  Outcome = "no_answer"
	OutcomeBusy      Outcome = "busy"
	OutcomeVoicemail Outcome = "voicemail"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCallback  Outcome = "callback"
	OutcomeContacted Outcome = "contacted"

	// OutcomeInvalidNumber retires the contact: redialing a bad number
	// cannot succeed.
	OutcomeInvalidNumber Outcome = "invalid_number"
)

// Retryable reports whether the outcome should requeue the contact with
// backoff rather than retire it.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeNoAnswer, OutcomeBusy, OutcomeVoicemail, OutcomeRejected, OutcomeFailed, OutcomeTimeout, OutcomeCallback:
		return true
	default:
		return false
	}
}

// LockToken proves ownership of a contact lease.
// Release and renew are conditional on the token, not just the owner,
// so a reclaimed-and-reacquired lock cannot be released by the old holder.
type LockToken struct {
	ID        string    `json:"id"`
	ContactID string    `json:"contact_id"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}
