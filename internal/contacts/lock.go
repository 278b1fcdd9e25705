package contacts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-engine/internal/audit"
)

// SessionGuard answers whether a contact currently has a non-terminal call
// session. The sweep must never reclaim a lease out from under an active
// call, even when the TTL has lapsed.
type SessionGuard interface {
	HasActiveSession(ctx context.Context, contactID string) bool
}

// LockManager owns lease acquisition, release, renewal, and reclamation of
// abandoned leases.
//
// Leases, not agent-initiated unlocks, are the source of truth for recovering
// contacts after an agent crash: every acquire carries a TTL, and the sweep
// clears lapsed leases that have no active session.
type LockManager struct {
	repo  Repository
	guard SessionGuard
	audit *audit.Service

	ttl           time.Duration
	sweepInterval time.Duration
	sweepBatch    int

	log   *slog.Logger
	clock func() time.Time
}

func NewLockManager(repo Repository, guard SessionGuard, auditSvc *audit.Service, ttl, sweepInterval time.Duration, log *slog.Logger) *LockManager {
	if log == nil {
		log = slog.Default()
	}
	return &LockManager{
		repo:          repo,
		guard:         guard,
		audit:         auditSvc,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		sweepBatch:    100,
		log:           log.With("component", "lock_manager"),
		clock:         time.Now,
	}
}

// SetGuard wires the session guard after construction. The session manager
// needs the lock manager to exist first, so the guard arrives late.
func (m *LockManager) SetGuard(g SessionGuard) { m.guard = g }

// Acquire takes an exclusive lease on the contact for the configured TTL.
// Returns ErrLockHeld when another owner has a valid lease.
func (m *LockManager) Acquire(ctx context.Context, contactID, ownerID string) (LockToken, error) {
	return m.repo.TryLock(ctx, contactID, ownerID, m.ttl, m.clock().UTC())
}

// Release gives the lease back. Safe to call with a stale token; staleness
// is reported as ErrLockNotHeld and the row is untouched.
func (m *LockManager) Release(ctx context.Context, token LockToken) error {
	return m.repo.ReleaseLock(ctx, token)
}

// Renew extends a still-valid lease by the configured TTL.
func (m *LockManager) Renew(ctx context.Context, token LockToken) (LockToken, error) {
	return m.repo.RenewLock(ctx, token, m.ttl, m.clock().UTC())
}

// SweepOnce reclaims expired leases that have no active session. Returns the
// number of contacts returned to the pool.
//
// A lapsed lease with a live session is fatal-but-recoverable: the call is
// still in flight, so reclamation would let a second agent dial the same
// contact. Those rows are skipped; they are retried on the next pass once
// the session reaches a terminal state.
func (m *LockManager) SweepOnce(ctx context.Context) (int, error) {
	now := m.clock().UTC()
	expired, err := m.repo.ExpiredLocks(ctx, now, m.sweepBatch)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, c := range expired {
		if m.guard != nil && m.guard.HasActiveSession(ctx, c.ID) {
			m.log.Warn("lock expired during active call, not reclaiming",
				"contact_id", c.ID, "owner", c.LockOwner)
			continue
		}
		if err := m.repo.ClearExpiredLock(ctx, c.ID, now); err != nil {
			if errors.Is(err, ErrLockHeld) {
				// Reacquired between scan and clear; leave it alone.
				continue
			}
			m.log.Error("lock reclaim failed", "contact_id", c.ID, "err", err)
			continue
		}
		reclaimed++
		m.log.Info("lock reclaimed", "contact_id", c.ID, "former_owner", c.LockOwner)
		if m.audit != nil {
			_ = m.audit.LogLockReclaimed(ctx, c.ID, c.LockOwner)
		}
	}
	return reclaimed, nil
}

// RunSweeper runs the reclamation scan until ctx is canceled.
func (m *LockManager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepOnce(ctx); err != nil {
				m.log.Error("sweep failed", "err", err)
			}
		}
	}
}
