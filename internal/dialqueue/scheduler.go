package dialqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-engine/internal/contacts"
)

// Scheduler selects the next contact to dial for a campaign and applies
// retry bookkeeping when an attempt completes.
//
// Selection is "pick candidate, then try to lock": a lost lock race is not
// an error, it just means another agent got there first, so the loop moves
// to the next candidate. Callers only ever see a contact they hold the
// lease for, or ErrEmpty.
type Scheduler struct {
	repo  contacts.Repository
	locks *contacts.LockManager

	policy Policy

	// candidateBatch bounds how many eligible rows one pull considers
	// before reporting the queue empty.
	candidateBatch int

	log   *slog.Logger
	clock func() time.Time
}

// ErrEmpty means no eligible, lockable contact exists right now.
var ErrEmpty = errors.New("dial queue empty")

func NewScheduler(repo contacts.Repository, locks *contacts.LockManager, policy Policy, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		repo:           repo,
		locks:          locks,
		policy:         policy.withDefaults(),
		candidateBatch: 10,
		log:            log.With("component", "dial_scheduler"),
		clock:          time.Now,
	}
}

// NextEligible returns the next dialable contact for the campaign with an
// exclusive lease held by agentID. Ordering: fewest attempts first, then
// earliest next_attempt_at, then FIFO by enqueue time.
func (s *Scheduler) NextEligible(ctx context.Context, campaignID, agentID string) (contacts.Contact, contacts.LockToken, error) {
	if campaignID == "" || agentID == "" {
		return contacts.Contact{}, contacts.LockToken{}, contacts.ErrInvalidArgument
	}

	now := s.clock().UTC()
	candidates, err := s.repo.ListEligible(ctx, campaignID, now, s.candidateBatch)
	if err != nil {
		return contacts.Contact{}, contacts.LockToken{}, err
	}

	for _, c := range candidates {
		tok, err := s.locks.Acquire(ctx, c.ID, agentID)
		if err != nil {
			if errors.Is(err, contacts.ErrLockHeld) || errors.Is(err, contacts.ErrNotFound) {
				// Raced with another agent (or a stale read); never
				// surface contention to the caller.
				continue
			}
			return contacts.Contact{}, contacts.LockToken{}, err
		}

		c.LockOwner = tok.Owner
		c.LockExpiresAt = tok.ExpiresAt
		c.Status = contacts.StatusLocked
		return c, tok, nil
	}

	return contacts.Contact{}, contacts.LockToken{}, ErrEmpty
}

// Reschedule applies the outcome of a completed dial attempt:
//   - retryable outcomes requeue with exponential backoff, or retire the
//     contact as exhausted at the attempt budget;
//   - a successful conversation retires the contact as contacted;
//   - other non-retryable outcomes (a bad number) retire it as
//     unreachable, so contacted keeps meaning an actual conversation.
//
// Every completed dial counts as an attempt regardless of outcome.
func (s *Scheduler) Reschedule(ctx context.Context, contactID string, outcome contacts.Outcome, at time.Time) error {
	if contactID == "" || outcome == "" {
		return contacts.ErrInvalidArgument
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}

	c, err := s.repo.Get(ctx, contactID)
	if err != nil {
		return err
	}

	attempts := c.AttemptCount + 1

	var status contacts.ContactStatus
	nextAt := at
	switch {
	case outcome == contacts.OutcomeContacted:
		status = contacts.StatusContacted
	case !outcome.Retryable():
		status = contacts.StatusUnreachable
	case s.policy.Exhausted(attempts):
		status = contacts.StatusExhausted
	default:
		status = contacts.StatusQueued
		nextAt = at.Add(s.policy.Delay(attempts))
	}

	if err := s.repo.ApplyOutcome(ctx, contactID, outcome, attempts, nextAt, status, at); err != nil {
		return err
	}

	s.log.Info("contact rescheduled",
		"contact_id", contactID,
		"outcome", string(outcome),
		"attempts", attempts,
		"status", string(status),
		"next_attempt_at", nextAt,
	)
	return nil
}
