package disposition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-engine/internal/audit"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/records"
	"dialer-engine/internal/session"
)

// Validation codes surfaced to API clients on a rejected finalize.
const (
	CodeUnknownDisposition = "unknown_disposition"
	CodeMissingEvidence    = "missing_evidence"
	CodeMissingNotes       = "missing_notes"
	CodeInvalidState       = "invalid_state"
)

// ValidationError is a finalize rejection the agent can act on.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("finalize rejected (%s): %s", e.Code, e.Message)
}

var ErrSessionNotFound = errors.New("session not found")

// SessionSource is the slice of the session manager finalize needs.
type SessionSource interface {
	Get(ctx context.Context, sessionID string) (session.Session, error)
	CompleteWrapUp(ctx context.Context, sessionID string, outcome contacts.Outcome) (session.Session, error)
}

// FinalizeRequest is the agent's wrap-up submission.
type FinalizeRequest struct {
	SessionID   string `json:"session_id"`
	Disposition string `json:"disposition"`
	Notes       string `json:"notes,omitempty"`

	// Evidence optionally overrides the record's evidence reference, for
	// example a recording URL. When empty the session's gateway call id is
	// used.
	Evidence string `json:"evidence,omitempty"`
}

// FinalizeResult reports the persisted record and whether this request
// created it (false means an earlier identical request already did).
type FinalizeResult struct {
	Record  records.CallRecord `json:"record"`
	Created bool               `json:"created"`
}

// Finalizer validates a wrap-up submission and persists the call record
// exactly once per session.
//
// Ordering on the happy path: validate, persist record, then complete
// wrap-up (release lease, reschedule contact). A crash between persist and
// complete leaves a record with a still-wrapped session; the retry skips
// the insert (idempotent) and finishes the wrap-up, so no step runs twice.
type Finalizer struct {
	sessions SessionSource
	store    records.Store
	catalog  *Catalog
	audit    *audit.Service

	log   *slog.Logger
	clock func() time.Time
}

func NewFinalizer(sessions SessionSource, store records.Store, catalog *Catalog, auditSvc *audit.Service, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Finalizer{
		sessions: sessions,
		store:    store,
		catalog:  catalog,
		audit:    auditSvc,
		log:      log.With("component", "finalizer"),
		clock:    time.Now,
	}
}

// Catalog exposes the disposition set for API listing.
func (f *Finalizer) Catalog() *Catalog { return f.catalog }

func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	if req.SessionID == "" {
		return FinalizeResult{}, &ValidationError{Code: CodeInvalidState, Message: "session_id required"}
	}

	// A retried finalize returns the original record untouched, whatever
	// the retry's payload says.
	if existing, err := f.store.FindBySession(ctx, req.SessionID); err == nil {
		f.ensureCompleted(ctx, req.SessionID, existing)
		return FinalizeResult{Record: existing, Created: false}, nil
	} else if !errors.Is(err, records.ErrNotFound) {
		return FinalizeResult{}, err
	}

	d, ok := f.catalog.Resolve(req.Disposition)
	if !ok {
		return FinalizeResult{}, &ValidationError{
			Code:    CodeUnknownDisposition,
			Message: fmt.Sprintf("disposition %q is not in the catalog", req.Disposition),
		}
	}

	s, err := f.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return FinalizeResult{}, ErrSessionNotFound
		}
		return FinalizeResult{}, err
	}

	switch s.State {
	case session.StateWrapUp, session.StateEnded:
	default:
		return FinalizeResult{}, &ValidationError{
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("session is %s; only wrapped-up calls can be finalized", s.State),
		}
	}

	evidence := req.Evidence
	if evidence == "" {
		evidence = s.EvidenceRef()
	}
	if evidence == "" {
		return FinalizeResult{}, &ValidationError{
			Code:    CodeMissingEvidence,
			Message: "no evidence supplied and the session has no gateway call id",
		}
	}
	if d.RequiresNotes && req.Notes == "" {
		return FinalizeResult{}, &ValidationError{
			Code:    CodeMissingNotes,
			Message: fmt.Sprintf("disposition %q requires notes", d.Name),
		}
	}

	rec, created, err := f.store.CreateIfAbsent(ctx, records.CallRecord{
		SessionID:       s.ID,
		CampaignID:      s.CampaignID,
		ContactID:       s.ContactID,
		AgentID:         s.AgentID,
		DispositionID:   d.ID,
		Disposition:     d.Name,
		Notes:           req.Notes,
		DurationSeconds: int(s.Duration() / time.Second),
		EvidenceRef:     evidence,
		CreatedAt:       f.clock().UTC(),
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	if _, err := f.sessions.CompleteWrapUp(ctx, s.ID, d.Outcome); err != nil && !errors.Is(err, session.ErrNotFound) {
		// The record is durable; the session side is retried on the next
		// finalize or recovered by the lock sweep.
		f.log.Error("wrap-up completion failed", "session_id", s.ID, "err", err)
	}

	if created {
		if f.audit != nil {
			_ = f.audit.LogRecordFinalized(ctx, s.ID, s.ContactID, s.AgentID)
		}
		f.log.Info("call record finalized",
			"session_id", s.ID,
			"contact_id", s.ContactID,
			"agent_id", s.AgentID,
			"disposition", d.Name,
		)
	}
	return FinalizeResult{Record: rec, Created: created}, nil
}

// ensureCompleted finishes the session side of a finalize whose record
// already exists (crash or race between persist and wrap-up completion).
func (f *Finalizer) ensureCompleted(ctx context.Context, sessionID string, rec records.CallRecord) {
	outcome := contacts.OutcomeContacted
	if d, ok := f.catalog.Resolve(rec.Disposition); ok {
		outcome = d.Outcome
	}
	if _, err := f.sessions.CompleteWrapUp(ctx, sessionID, outcome); err != nil && !errors.Is(err, session.ErrNotFound) {
		f.log.Error("wrap-up completion retry failed", "session_id", sessionID, "err", err)
	}
}
