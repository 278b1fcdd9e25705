package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for dialer events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal operational events.
//
// IMPORTANT:
// - These records are internal-only; they are not the call records the
//   finalize path persists.
// - Callers should treat appends as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogDialIssued records a dial command accepted by the gateway.
func (s *Service) LogDialIssued(ctx context.Context, campaignID, contactID, agentID, sessionID string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeDialIssued,
		CampaignID: campaignID,
		ContactID:  contactID,
		AgentID:    agentID,
		SessionID:  sessionID,
		Message:    "dial issued",
	})
}

// LogLockReclaimed records an expired lease cleared by the sweep.
func (s *Service) LogLockReclaimed(ctx context.Context, contactID, formerOwner string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeLockReclaimed,
		ContactID: contactID,
		AgentID:   formerOwner,
		Message:   "expired lock reclaimed",
	})
}

// LogEventIgnored records a gateway event that did not apply to the
// session's current state (duplicate or out-of-order delivery).
func (s *Service) LogEventIgnored(ctx context.Context, sessionID, reason, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeEventIgnored,
		SessionID: sessionID,
		Message:   reason,
		Metadata:  metadata,
	})
}

// LogAgentStatus records an agent availability change.
func (s *Service) LogAgentStatus(ctx context.Context, agentID, status string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeAgentStatus,
		AgentID:  agentID,
		Message:  "agent status changed",
		Metadata: status,
	})
}

// LogRecordFinalized records a successful finalize.
func (s *Service) LogRecordFinalized(ctx context.Context, sessionID, contactID, agentID string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeRecordFinalized,
		SessionID: sessionID,
		ContactID: contactID,
		AgentID:   agentID,
		Message:   "call record persisted",
	})
}
