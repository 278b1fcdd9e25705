package contacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory repository useful for tests and local
// development. Lock operations hold the repo mutex for the whole
// check-and-set, giving the same atomicity the SQL repo gets from
// conditional updates.
//
// NOTE: This is not intended for production; use PostgresRepo.
type MemoryRepo struct {
	mu       sync.Mutex
	contacts map[string]Contact
	// tokens maps contact id -> current lock token id.
	tokens map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		contacts: make(map[string]Contact),
		tokens:   make(map[string]string),
	}
}

func (r *MemoryRepo) Get(ctx context.Context, contactID string) (Contact, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) Put(ctx context.Context, c Contact) error {
	_ = ctx
	if c.ID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Status == "" {
		c.Status = StatusNew
	}
	r.contacts[c.ID] = c
	return nil
}

func (r *MemoryRepo) ListEligible(ctx context.Context, campaignID string, now time.Time, limit int) ([]Contact, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Contact
	for _, c := range r.contacts {
		if c.CampaignID != campaignID {
			continue
		}
		if !c.Dialable(now) {
			continue
		}
		if c.Locked(now) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AttemptCount != b.AttemptCount {
			return a.AttemptCount < b.AttemptCount
		}
		if !a.NextAttemptAt.Equal(b.NextAttemptAt) {
			return a.NextAttemptAt.Before(b.NextAttemptAt)
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) TryLock(ctx context.Context, contactID, ownerID string, ttl time.Duration, now time.Time) (LockToken, error) {
	_ = ctx
	if contactID == "" || ownerID == "" || ttl <= 0 {
		return LockToken{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[contactID]
	if !ok {
		return LockToken{}, ErrNotFound
	}
	if c.Locked(now) {
		return LockToken{}, ErrLockHeld
	}

	tok := LockToken{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Owner:     ownerID,
		ExpiresAt: now.Add(ttl),
	}
	c.LockOwner = ownerID
	c.LockExpiresAt = tok.ExpiresAt
	c.Status = StatusLocked
	c.UpdatedAt = now
	r.contacts[contactID] = c
	r.tokens[contactID] = tok.ID
	return tok, nil
}

func (r *MemoryRepo) ReleaseLock(ctx context.Context, token LockToken) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens[token.ContactID] != token.ID {
		return ErrLockNotHeld
	}
	c, ok := r.contacts[token.ContactID]
	if !ok {
		return ErrNotFound
	}
	c.LockOwner = ""
	c.LockExpiresAt = time.Time{}
	if c.Status == StatusLocked {
		c.Status = StatusQueued
	}
	r.contacts[token.ContactID] = c
	delete(r.tokens, token.ContactID)
	return nil
}

func (r *MemoryRepo) RenewLock(ctx context.Context, token LockToken, ttl time.Duration, now time.Time) (LockToken, error) {
	_ = ctx
	if ttl <= 0 {
		return LockToken{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens[token.ContactID] != token.ID {
		return LockToken{}, ErrLockNotHeld
	}
	c, ok := r.contacts[token.ContactID]
	if !ok {
		return LockToken{}, ErrNotFound
	}
	if !now.Before(c.LockExpiresAt) {
		// Expired leases are not renewable; the sweep may already be
		// reclaiming this contact.
		return LockToken{}, ErrLockNotHeld
	}

	token.ExpiresAt = now.Add(ttl)
	c.LockExpiresAt = token.ExpiresAt
	c.UpdatedAt = now
	r.contacts[token.ContactID] = c
	return token, nil
}

func (r *MemoryRepo) ExpiredLocks(ctx context.Context, now time.Time, limit int) ([]Contact, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Contact
	for _, c := range r.contacts {
		if c.LockOwner == "" {
			continue
		}
		if now.Before(c.LockExpiresAt) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) ClearExpiredLock(ctx context.Context, contactID string, now time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[contactID]
	if !ok {
		return ErrNotFound
	}
	if c.LockOwner == "" {
		return nil
	}
	if now.Before(c.LockExpiresAt) {
		// Lease was renewed or reacquired since the sweep read it.
		return ErrLockHeld
	}
	c.LockOwner = ""
	c.LockExpiresAt = time.Time{}
	if c.Status == StatusLocked {
		c.Status = StatusQueued
	}
	c.UpdatedAt = now
	r.contacts[contactID] = c
	delete(r.tokens, contactID)
	return nil
}

func (r *MemoryRepo) ApplyOutcome(ctx context.Context, contactID string, outcome Outcome, attemptCount int, nextAttemptAt time.Time, status ContactStatus, now time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[contactID]
	if !ok {
		return ErrNotFound
	}
	c.LastOutcome = outcome
	c.AttemptCount = attemptCount
	c.NextAttemptAt = nextAttemptAt
	c.Status = status
	c.UpdatedAt = now
	r.contacts[contactID] = c
	return nil
}
