package records

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-engine/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore persists call records with database/sql (pgx stdlib driver).
//
// NOTE: Assumes a call_records table with columns matching the db tags on
// CallRecord and a UNIQUE constraint on session_id. The constraint, not
// application logic, is what makes finalize exactly-once across instances.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
id, session_id, campaign_id, contact_id, agent_id,
disposition_id, disposition, COALESCE(notes, ''), duration_seconds, COALESCE(evidence_ref, ''), created_at
`

func scanRecord(row interface{ Scan(...any) error }) (CallRecord, error) {
	var r CallRecord
	err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.CampaignID,
		&r.ContactID,
		&r.AgentID,
		&r.DispositionID,
		&r.Disposition,
		&r.Notes,
		&r.DurationSeconds,
		&r.EvidenceRef,
		&r.CreatedAt,
	)
	return r, err
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, rec CallRecord) (CallRecord, bool, error) {
	if rec.SessionID == "" {
		return CallRecord{}, false, ErrInvalidArgument
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var (
		stored  CallRecord
		created bool
	)
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const ins = `
			INSERT INTO call_records
				(id, session_id, campaign_id, contact_id, agent_id,
				 disposition_id, disposition, notes, duration_seconds, evidence_ref, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, ins,
			rec.ID, rec.SessionID, rec.CampaignID, rec.ContactID, rec.AgentID,
			rec.DispositionID, rec.Disposition, rec.Notes, rec.DurationSeconds, rec.EvidenceRef, rec.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1

		const sel = `SELECT ` + recordColumns + ` FROM call_records WHERE session_id = $1`
		stored, err = scanRecord(tx.QueryRowContext(ctx, sel, rec.SessionID))
		return err
	})
	if err != nil {
		return CallRecord{}, false, err
	}
	return stored, created, nil
}

func (s *PostgresStore) FindBySession(ctx context.Context, sessionID string) (CallRecord, error) {
	const q = `SELECT ` + recordColumns + ` FROM call_records WHERE session_id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	if err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}
