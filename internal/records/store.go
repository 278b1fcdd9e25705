package records

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("call record not found")
	ErrInvalidArgument = errors.New("invalid call record")
)

// Store persists call records with per-session idempotency.
type Store interface {
	// CreateIfAbsent inserts the record unless one already exists for its
	// session. It returns the stored record and whether this call created
	// it; a losing racer gets the winner's record and created=false.
	CreateIfAbsent(ctx context.Context, rec CallRecord) (CallRecord, bool, error)

	// FindBySession returns the record for a session, or ErrNotFound.
	FindBySession(ctx context.Context, sessionID string) (CallRecord, error)
}
