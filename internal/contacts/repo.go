package contacts

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("contact not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLockHeld means another owner holds a valid lease. This is a
	// contention signal, not a failure; callers move to the next candidate.
	ErrLockHeld = errors.New("lock held")

	// ErrLockNotHeld means the presented token no longer matches the row
	// (expired and reclaimed, or already released).
	ErrLockNotHeld = errors.New("lock not held")
)

// Repository abstracts contact persistence.
//
// Concurrency contract: TryLock, ReleaseLock, RenewLock and ClearExpiredLock
// are atomic conditional updates (compare-and-swap on the lock columns).
// Everything else may be a plain read or write; attempt bookkeeping is only
// written while the caller holds the lease or after the session is terminal.
type Repository interface {
	Get(ctx context.Context, contactID string) (Contact, error)
	Put(ctx context.Context, c Contact) error

	// ListEligible returns dialable contacts for a campaign ordered by
	// (attempt_count ASC, next_attempt_at ASC, enqueued_at ASC).
	// Contacts with an expired lock are included: expiry means unlocked.
	ListEligible(ctx context.Context, campaignID string, now time.Time, limit int) ([]Contact, error)

	// TryLock sets the lease iff no valid lease exists. Returns ErrLockHeld
	// on contention and ErrNotFound for unknown contacts.
	TryLock(ctx context.Context, contactID, ownerID string, ttl time.Duration, now time.Time) (LockToken, error)

	// ReleaseLock clears the lease iff token matches.
	ReleaseLock(ctx context.Context, token LockToken) error

	// RenewLock extends the lease iff token matches and the lease has not
	// expired and been reclaimed.
	RenewLock(ctx context.Context, token LockToken, ttl time.Duration, now time.Time) (LockToken, error)

	// ExpiredLocks returns contacts whose lease has lapsed (sweep input).
	ExpiredLocks(ctx context.Context, now time.Time, limit int) ([]Contact, error)

	// ClearExpiredLock clears the lease iff it is still expired at now,
	// returning the contact to the eligible pool with the given status.
	ClearExpiredLock(ctx context.Context, contactID string, now time.Time) error

	// ApplyOutcome writes attempt bookkeeping and the resulting status.
	ApplyOutcome(ctx context.Context, contactID string, outcome Outcome, attemptCount int, nextAttemptAt time.Time, status ContactStatus, now time.Time) error
}
