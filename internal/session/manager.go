package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-engine/internal/audit"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/dialqueue"
	"dialer-engine/internal/gateway"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidState = errors.New("invalid session state")
)

// TerminalNotifier is told when a session reaches Ended or Failed, so the
// agent controller can settle per-agent accounting. Accounting changes only
// at dial issue and at terminal transition, never on mid-call status flips.
type TerminalNotifier interface {
	SessionTerminated(ctx context.Context, agentID, sessionID string)
}

type entry struct {
	mu sync.Mutex
	s  Session

	ringTimer *time.Timer
}

// Manager owns every live Session and serializes work per session.
//
// Concurrency model: one entry mutex per session (single writer per
// session id), a manager mutex only for the index maps. Gateway events,
// the ring timer, agent hangup, and finalize all contend on the entry
// mutex, so each session observes a total order of mutations.
type Manager struct {
	mu         sync.Mutex
	byID       map[string]*entry
	byExternal map[string]string
	// byContact holds the session id of the one non-terminal session per
	// contact; the lock sweep consults it before reclaiming a lease.
	byContact map[string]string

	dialer   gateway.Dialer
	locks    *contacts.LockManager
	sched    *dialqueue.Scheduler
	audit    *audit.Service
	notifier TerminalNotifier

	ringTimeout time.Duration

	// retention bounds how long a terminal session stays queryable before
	// its index entries are dropped. Late webhook duplicates and finalize
	// retries inside the window still resolve the session; after it, the
	// record store is the source of truth.
	retention time.Duration

	log   *slog.Logger
	clock func() time.Time
}

func NewManager(dialer gateway.Dialer, locks *contacts.LockManager, sched *dialqueue.Scheduler, auditSvc *audit.Service, ringTimeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		byID:        make(map[string]*entry),
		byExternal:  make(map[string]string),
		byContact:   make(map[string]string),
		dialer:      dialer,
		locks:       locks,
		sched:       sched,
		audit:       auditSvc,
		ringTimeout: ringTimeout,
		retention:   5 * time.Minute,
		log:         log.With("component", "session_manager"),
		clock:       time.Now,
	}
}

// SetNotifier wires the agent controller after construction (the controller
// needs the manager to originate, so the dependency is circular by nature).
func (m *Manager) SetNotifier(n TerminalNotifier) { m.notifier = n }

// Originate creates a session for a locked contact and issues the dial
// command. The caller must hold the contact lease; the session takes
// ownership of the token and releases it when the call settles.
//
// An immediate gateway rejection fails the session, releases the lease and
// reschedules the contact before returning; the error tells the caller no
// call is in flight.
func (m *Manager) Originate(ctx context.Context, c contacts.Contact, token contacts.LockToken, agentID string) (Session, error) {
	if c.ID == "" || c.Phone == "" || agentID == "" {
		return Session{}, contacts.ErrInvalidArgument
	}
	if token.ContactID != c.ID {
		return Session{}, fmt.Errorf("%w: token is for a different contact", contacts.ErrInvalidArgument)
	}

	now := m.clock().UTC()
	e := &entry{s: Session{
		ID:         uuid.NewString(),
		ContactID:  c.ID,
		AgentID:    agentID,
		CampaignID: c.CampaignID,
		State:      StateIdle,
		StartedAt:  now,
		LockToken:  token,
	}}

	m.mu.Lock()
	m.byID[e.s.ID] = e
	m.byContact[c.ID] = e.s.ID
	m.mu.Unlock()

	res, err := m.dialer.Dial(ctx, gateway.DialRequest{
		To:         c.Phone,
		CampaignID: c.CampaignID,
		ContactID:  c.ID,
		SessionID:  e.s.ID,
	})
	if err != nil {
		e.mu.Lock()
		e.s.State = StateFailed
		e.s.Cause = CauseRejected
		if !errors.Is(err, gateway.ErrDialRejected) {
			e.s.Cause = CauseFailed
		}
		e.s.EndedAt = m.clock().UTC()
		snapshot := e.s
		e.mu.Unlock()

		m.settleTerminal(ctx, snapshot)
		m.log.Warn("dial rejected", "session_id", snapshot.ID, "contact_id", c.ID, "err", err)
		return snapshot, fmt.Errorf("originate: %w", err)
	}

	e.mu.Lock()
	e.s.ExternalCallID = res.ExternalCallID
	e.s.State = StateConnecting
	e.armRingTimer(m, e.s.ID)
	snapshot := e.s
	e.mu.Unlock()

	m.mu.Lock()
	m.byExternal[res.ExternalCallID] = snapshot.ID
	m.mu.Unlock()

	if m.audit != nil {
		_ = m.audit.LogDialIssued(ctx, c.CampaignID, c.ID, agentID, snapshot.ID)
	}
	m.log.Info("dial issued",
		"session_id", snapshot.ID,
		"external_call_id", res.ExternalCallID,
		"contact_id", c.ID,
		"agent_id", agentID,
	)
	return snapshot, nil
}

// armRingTimer must be called with e.mu held.
func (e *entry) armRingTimer(m *Manager, sessionID string) {
	if m.ringTimeout <= 0 {
		return
	}
	e.ringTimer = time.AfterFunc(m.ringTimeout, func() {
		m.onRingTimeout(sessionID)
	})
}

func (m *Manager) onRingTimeout(sessionID string) {
	e := m.lookup(sessionID)
	if e == nil {
		return
	}

	e.mu.Lock()
	forced := forceRingTimeout(&e.s, m.clock().UTC())
	snapshot := e.s
	e.mu.Unlock()

	if !forced {
		return
	}
	m.log.Warn("ring timeout", "session_id", sessionID, "contact_id", snapshot.ContactID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.settleTerminal(ctx, snapshot)
}

// HandleGatewayEvent applies one webhook event. Unknown sessions, stale
// sequences and inapplicable transitions are absorbed (logged, audited)
// rather than surfaced: at-least-once, out-of-order delivery is the
// gateway's contract.
func (m *Manager) HandleGatewayEvent(ctx context.Context, ev gateway.Event) error {
	e := m.resolve(ev)
	if e == nil {
		m.log.Warn("event for unknown session",
			"session_id", ev.SessionID,
			"external_call_id", ev.ExternalCallID,
			"event_type", string(ev.Type),
		)
		if m.audit != nil {
			_ = m.audit.LogEventIgnored(ctx, ev.SessionID, "unknown session", string(ev.Type))
		}
		return nil
	}

	e.mu.Lock()
	res := applyEvent(&e.s, ev, m.clock().UTC())
	if res.applied && (res.terminal || res.wrappedUp || e.s.State == StateAnswered) {
		// The ring window is only relevant while connecting/ringing.
		if e.ringTimer != nil {
			e.ringTimer.Stop()
			e.ringTimer = nil
		}
	}
	snapshot := e.s
	e.mu.Unlock()

	if !res.applied {
		m.log.Debug("gateway event ignored",
			"session_id", snapshot.ID,
			"state", string(snapshot.State),
			"event_type", string(ev.Type),
			"seq", ev.Seq,
			"reason", res.ignoreReason,
		)
		if m.audit != nil {
			_ = m.audit.LogEventIgnored(ctx, snapshot.ID, res.ignoreReason, string(ev.Type))
		}
		return nil
	}

	m.log.Info("session event applied",
		"session_id", snapshot.ID,
		"event_type", string(ev.Type),
		"state", string(snapshot.State),
	)

	if res.terminal {
		m.settleTerminal(ctx, snapshot)
	}
	return nil
}

// EndByAgent transitions an answered call to WrapUp. There is no
// cancellation of an outstanding dial; ending is only valid once answered.
func (m *Manager) EndByAgent(ctx context.Context, sessionID string) (Session, error) {
	e := m.lookup(sessionID)
	if e == nil {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	ok := endByAgent(&e.s, m.clock().UTC())
	if ok && e.ringTimer != nil {
		e.ringTimer.Stop()
		e.ringTimer = nil
	}
	snapshot := e.s
	e.mu.Unlock()

	if !ok {
		return snapshot, fmt.Errorf("%w: cannot end call in state %s", ErrInvalidState, snapshot.State)
	}
	m.log.Info("call ended by agent", "session_id", sessionID)
	return snapshot, nil
}

// CompleteWrapUp moves a wrapped-up session to Ended after its call record
// has been persisted, then releases the lease and reschedules the contact
// with the disposition outcome. Calling it on an already-Ended session is
// a no-op (idempotent finalize retries).
func (m *Manager) CompleteWrapUp(ctx context.Context, sessionID string, outcome contacts.Outcome) (Session, error) {
	e := m.lookup(sessionID)
	if e == nil {
		return Session{}, ErrNotFound
	}

	e.mu.Lock()
	switch e.s.State {
	case StateWrapUp:
		e.s.State = StateEnded
	case StateEnded:
		snapshot := e.s
		e.mu.Unlock()
		return snapshot, nil
	default:
		snapshot := e.s
		e.mu.Unlock()
		return snapshot, fmt.Errorf("%w: cannot complete wrap-up from %s", ErrInvalidState, snapshot.State)
	}
	snapshot := e.s
	e.mu.Unlock()

	m.settleTerminalWithOutcome(ctx, snapshot, outcome)
	return snapshot, nil
}

// Get returns a point-in-time copy of the session.
func (m *Manager) Get(ctx context.Context, sessionID string) (Session, error) {
	_ = ctx
	e := m.lookup(sessionID)
	if e == nil {
		return Session{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s, nil
}

// HasActiveSession implements the lock sweep guard: true while a
// non-terminal session references the contact.
func (m *Manager) HasActiveSession(ctx context.Context, contactID string) bool {
	_ = ctx
	m.mu.Lock()
	sid, ok := m.byContact[contactID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e := m.lookup(sid)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.s.State.Terminal()
}

func (m *Manager) lookup(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[sessionID]
}

func (m *Manager) resolve(ev gateway.Event) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.SessionID != "" {
		if e, ok := m.byID[ev.SessionID]; ok {
			return e
		}
	}
	if ev.ExternalCallID != "" {
		if sid, ok := m.byExternal[ev.ExternalCallID]; ok {
			return m.byID[sid]
		}
	}
	return nil
}

// settleTerminal handles sessions that failed without a disposition: the
// lease is released and the contact rescheduled with the failure outcome.
func (m *Manager) settleTerminal(ctx context.Context, s Session) {
	m.settleTerminalWithOutcome(ctx, s, s.Outcome())
}

func (m *Manager) settleTerminalWithOutcome(ctx context.Context, s Session, outcome contacts.Outcome) {
	m.mu.Lock()
	if m.byContact[s.ContactID] == s.ID {
		delete(m.byContact, s.ContactID)
	}
	m.mu.Unlock()

	now := m.clock().UTC()

	if m.locks != nil {
		if err := m.locks.Release(ctx, s.LockToken); err != nil && !errors.Is(err, contacts.ErrLockNotHeld) {
			m.log.Error("lease release failed", "session_id", s.ID, "contact_id", s.ContactID, "err", err)
		}
	}
	if m.sched != nil {
		if err := m.sched.Reschedule(ctx, s.ContactID, outcome, now); err != nil {
			m.log.Error("reschedule failed", "session_id", s.ID, "contact_id", s.ContactID, "err", err)
		}
	}
	if m.notifier != nil {
		m.notifier.SessionTerminated(ctx, s.AgentID, s.ID)
	}

	if m.retention > 0 {
		time.AfterFunc(m.retention, func() {
			m.evict(s.ID, s.ExternalCallID)
		})
	}
}

func (m *Manager) evict(sessionID, externalCallID string) {
	m.mu.Lock()
	delete(m.byID, sessionID)
	if externalCallID != "" && m.byExternal[externalCallID] == sessionID {
		delete(m.byExternal, externalCallID)
	}
	m.mu.Unlock()
}
