package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo persists contacts with database/sql (pgx stdlib driver).
//
// NOTE: This repository assumes a contacts table with columns matching the
// db tags on Contact, plus lock_token (uuid, nullable). Lock operations are
// single conditional UPDATEs; the WHERE clause is the compare half of the
// compare-and-swap, so concurrent acquirers can never both succeed.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const contactColumns = `
id, campaign_id, phone, status, attempt_count, COALESCE(last_outcome, ''),
next_attempt_at, enqueued_at, COALESCE(lock_owner, ''), COALESCE(lock_expires_at, 'epoch'::timestamptz),
created_at, updated_at
`

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var c Contact
	if err := row.Scan(
		&c.ID,
		&c.CampaignID,
		&c.Phone,
		&c.Status,
		&c.AttemptCount,
		&c.LastOutcome,
		&c.NextAttemptAt,
		&c.EnqueuedAt,
		&c.LockOwner,
		&c.LockExpiresAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Contact{}, err
	}
	if c.LockExpiresAt.Unix() <= 0 {
		c.LockExpiresAt = time.Time{}
	}
	return c, nil
}

func (r *PostgresRepo) Get(ctx context.Context, contactID string) (Contact, error) {
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	c, err := scanContact(r.db.QueryRowContext(ctx, q, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) Put(ctx context.Context, c Contact) error {
	if c.ID == "" {
		return ErrInvalidArgument
	}
	if c.Status == "" {
		c.Status = StatusNew
	}
	const q = `
INSERT INTO contacts (id, campaign_id, phone, status, attempt_count, last_outcome,
                      next_attempt_at, enqueued_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $9)
ON CONFLICT (id) DO UPDATE SET
  campaign_id = EXCLUDED.campaign_id,
  phone = EXCLUDED.phone,
  status = EXCLUDED.status,
  attempt_count = EXCLUDED.attempt_count,
  last_outcome = EXCLUDED.last_outcome,
  next_attempt_at = EXCLUDED.next_attempt_at,
  updated_at = EXCLUDED.updated_at
`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.CampaignID, c.Phone, c.Status, c.AttemptCount, string(c.LastOutcome),
		c.NextAttemptAt, c.EnqueuedAt, now,
	)
	return err
}

func (r *PostgresRepo) ListEligible(ctx context.Context, campaignID string, now time.Time, limit int) ([]Contact, error) {
	const q = `
SELECT ` + contactColumns + `
FROM contacts
WHERE campaign_id = $1
  AND status IN ('new', 'queued')
  AND next_attempt_at <= $2
  AND (lock_owner IS NULL OR lock_expires_at <= $2)
ORDER BY attempt_count ASC, next_attempt_at ASC, enqueued_at ASC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, campaignID, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TryLock(ctx context.Context, contactID, ownerID string, ttl time.Duration, now time.Time) (LockToken, error) {
	if contactID == "" || ownerID == "" || ttl <= 0 {
		return LockToken{}, ErrInvalidArgument
	}

	tok := LockToken{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Owner:     ownerID,
		ExpiresAt: now.Add(ttl),
	}

	// Single conditional update: acquire only when no valid lease exists.
	const q = `
UPDATE contacts
SET lock_owner = $2, lock_expires_at = $3, lock_token = $4, status = 'locked', updated_at = $5
WHERE id = $1
  AND (lock_owner IS NULL OR lock_expires_at <= $5)
`
	res, err := r.db.ExecContext(ctx, q, contactID, ownerID, tok.ExpiresAt, tok.ID, now)
	if err != nil {
		return LockToken{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return LockToken{}, err
	}
	if n == 1 {
		return tok, nil
	}

	// Disambiguate contention from a missing row.
	if _, err := r.Get(ctx, contactID); err != nil {
		return LockToken{}, err
	}
	return LockToken{}, ErrLockHeld
}

func (r *PostgresRepo) ReleaseLock(ctx context.Context, token LockToken) error {
	const q = `
UPDATE contacts
SET lock_owner = NULL, lock_expires_at = NULL, lock_token = NULL,
    status = CASE WHEN status = 'locked' THEN 'queued' ELSE status END,
    updated_at = now()
WHERE id = $1 AND lock_token = $2
`
	res, err := r.db.ExecContext(ctx, q, token.ContactID, token.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (r *PostgresRepo) RenewLock(ctx context.Context, token LockToken, ttl time.Duration, now time.Time) (LockToken, error) {
	if ttl <= 0 {
		return LockToken{}, ErrInvalidArgument
	}
	const q = `
UPDATE contacts
SET lock_expires_at = $3, updated_at = $4
WHERE id = $1 AND lock_token = $2 AND lock_expires_at > $4
`
	expiresAt := now.Add(ttl)
	res, err := r.db.ExecContext(ctx, q, token.ContactID, token.ID, expiresAt, now)
	if err != nil {
		return LockToken{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return LockToken{}, err
	}
	if n == 0 {
		return LockToken{}, ErrLockNotHeld
	}
	token.ExpiresAt = expiresAt
	return token, nil
}

func (r *PostgresRepo) ExpiredLocks(ctx context.Context, now time.Time, limit int) ([]Contact, error) {
	const q = `
SELECT ` + contactColumns + `
FROM contacts
WHERE lock_owner IS NOT NULL AND lock_expires_at <= $1
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ClearExpiredLock(ctx context.Context, contactID string, now time.Time) error {
	// The guard re-checks expiry so a renewed or reacquired lease survives.
	const q = `
UPDATE contacts
SET lock_owner = NULL, lock_expires_at = NULL, lock_token = NULL,
    status = CASE WHEN status = 'locked' THEN 'queued' ELSE status END,
    updated_at = $2
WHERE id = $1 AND lock_owner IS NOT NULL AND lock_expires_at <= $2
`
	res, err := r.db.ExecContext(ctx, q, contactID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		c, err := r.Get(ctx, contactID)
		if err != nil {
			return err
		}
		if c.LockOwner == "" {
			// Already cleared by a concurrent sweep or release.
			return nil
		}
		return ErrLockHeld
	}
	return nil
}

func (r *PostgresRepo) ApplyOutcome(ctx context.Context, contactID string, outcome Outcome, attemptCount int, nextAttemptAt time.Time, status ContactStatus, now time.Time) error {
	const q = `
UPDATE contacts
SET last_outcome = NULLIF($2, ''), attempt_count = $3, next_attempt_at = $4, status = $5, updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, contactID, string(outcome), attemptCount, nextAttemptAt, status, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
