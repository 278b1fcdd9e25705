package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends dialer events to the dialer_events table.
// INSERT-only by construction; there are no update or delete paths.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO dialer_events
			(id, type, campaign_id, contact_id, agent_id, session_id, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.CampaignID, e.ContactID, e.AgentID, e.SessionID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
