package agents

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
	"dialer-engine/internal/session"
)

var (
	ErrNotFound       = errors.New("agent not found")
	ErrNoCampaign     = errors.New("campaign required to go available")
	ErrStatusReserved = errors.New("status is engine-managed")
	ErrInvalidStatus  = errors.New("invalid agent status")
)

// WorkSource hands out locked contacts ready to dial.
type WorkSource interface {
	NextEligible(ctx context.Context, campaignID, agentID string) (contacts.Contact, contacts.LockToken, error)
}

// CallOriginator places a call for a locked contact.
type CallOriginator interface {
	Originate(ctx context.Context, c contacts.Contact, token contacts.LockToken, agentID string) (session.Session, error)
}

type agentEntry struct {
	a Agent

	// cancel stops the agent's pull loop; nil while no loop runs.
	cancel context.CancelFunc

	// live holds registered, not-yet-terminal session ids.
	live map[string]struct{}

	// inFlight counts dials issued but not yet registered (at most one,
	// the pull loop dials sequentially). earlySettled is set when the
	// terminal notification for that dial arrives before registration.
	inFlight     int
	earlySettled bool
}

// Controller runs the availability state machine and one pull loop per
// Available agent.
//
// The pull loop polls the dial queue with backoff (fast while work flows,
// slowing toward pullMax while the queue is empty), dials while the agent
// has free call slots, and parks the loop once at capacity. Terminal
// session notifications from the session manager free slots and resume it.
type Controller struct {
	mu      sync.Mutex
	entries map[string]*agentEntry

	queue      WorkSource
	originator CallOriginator
	limiter    SlotLimiter
	audit      *audit.Service

	maxConcurrent int

	pullMin time.Duration
	pullMax time.Duration

	// rootCtx bounds pull loop lifetimes; set by Start.
	rootCtx context.Context

	log   *slog.Logger
	clock func() time.Time
}

func NewController(queue WorkSource, originator CallOriginator, limiter SlotLimiter, auditSvc *audit.Service, maxConcurrent int, pullMin, pullMax time.Duration, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if pullMin <= 0 {
		pullMin = time.Second
	}
	if pullMax < pullMin {
		pullMax = 30 * time.Second
	}
	if limiter == nil {
		limiter = NewMemorySlotLimiter(maxConcurrent)
	}
	return &Controller{
		entries:       make(map[string]*agentEntry),
		queue:         queue,
		originator:    originator,
		limiter:       limiter,
		audit:         auditSvc,
		maxConcurrent: maxConcurrent,
		pullMin:       pullMin,
		pullMax:       pullMax,
		rootCtx:       context.Background(),
		log:           log.With("component", "agent_controller"),
		clock:         time.Now,
	}
}

// Start binds pull loop lifetimes to ctx. Call once before serving traffic;
// canceling ctx stops every loop.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.rootCtx = ctx
	c.mu.Unlock()
}

// SetStatus applies an agent-requested availability change.
//
// Busy cannot be requested: it is entered by the engine at dial issue.
// Going Available requires a campaign (given now or remembered from the
// previous Available period) and starts the pull loop. Away pauses the
// loop and keeps the campaign; Offline stops the loop and forgets it.
// Changing status mid-call never touches the live session.
func (c *Controller) SetStatus(ctx context.Context, agentID string, status Status, campaignID string) (Agent, error) {
	if agentID == "" {
		return Agent{}, fmt.Errorf("%w: agent id required", ErrInvalidStatus)
	}
	if !status.valid() {
		return Agent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == StatusBusy {
		return Agent{}, ErrStatusReserved
	}

	c.mu.Lock()
	e := c.entries[agentID]
	if e == nil {
		e = &agentEntry{
			a:    Agent{ID: agentID, Status: StatusOffline, MaxConcurrentCalls: c.maxConcurrent},
			live: make(map[string]struct{}),
		}
		c.entries[agentID] = e
	}

	switch status {
	case StatusAvailable:
		if campaignID == "" {
			campaignID = e.a.CampaignID
		}
		if campaignID == "" {
			c.mu.Unlock()
			return Agent{}, ErrNoCampaign
		}
		e.a.CampaignID = campaignID
		e.a.Status = StatusAvailable
		c.startLoopLocked(e)

	case StatusAway, StatusOffline:
		c.stopLoopLocked(e)
		e.a.Status = status
		if status == StatusOffline {
			e.a.CampaignID = ""
		}
	}

	e.a.UpdatedAt = c.clock().UTC()
	snapshot := e.a
	c.mu.Unlock()

	if c.audit != nil {
		_ = c.audit.LogAgentStatus(ctx, agentID, string(status))
	}
	c.log.Info("agent status changed",
		"agent_id", agentID,
		"status", string(snapshot.Status),
		"campaign_id", snapshot.CampaignID,
	)
	return snapshot, nil
}

// Get returns a point-in-time copy of the agent.
func (c *Controller) Get(ctx context.Context, agentID string) (Agent, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[agentID]
	if e == nil {
		return Agent{}, ErrNotFound
	}
	return e.a, nil
}

// SessionTerminated settles per-agent accounting when a session ends or
// fails. A freed slot moves a Busy agent (not Away or Offline mid-call)
// back to Available and resumes the pull loop.
//
// The notification may outrun pullOnce: the session manager settles fast
// failures before Originate returns, and a webhook terminal can land before
// the pull loop registers the session. Those settle the in-flight
// reservation here and are flagged so pullOnce does not settle twice.
func (c *Controller) SessionTerminated(ctx context.Context, agentID, sessionID string) {
	c.mu.Lock()
	e := c.entries[agentID]
	if e == nil {
		c.mu.Unlock()
		return
	}
	settled := false
	if _, ok := e.live[sessionID]; ok {
		delete(e.live, sessionID)
		e.a.ActiveCalls--
		settled = true
	} else if e.inFlight > 0 {
		e.inFlight--
		e.a.ActiveCalls--
		e.earlySettled = true
		settled = true
	}
	if e.a.ActiveSessionID == sessionID {
		e.a.ActiveSessionID = ""
	}
	resumed := false
	if settled && e.a.Status == StatusBusy && e.a.ActiveCalls < c.maxConcurrent {
		e.a.Status = StatusAvailable
		c.startLoopLocked(e)
		resumed = true
	}
	e.a.UpdatedAt = c.clock().UTC()
	c.mu.Unlock()

	if settled {
		if err := c.limiter.Release(ctx, agentID); err != nil {
			c.log.Error("call slot release failed", "agent_id", agentID, "err", err)
		}
	}

	c.log.Info("agent call settled",
		"agent_id", agentID,
		"session_id", sessionID,
		"resumed", resumed,
	)
}

// startLoopLocked must be called with c.mu held.
func (c *Controller) startLoopLocked(e *agentEntry) {
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.rootCtx)
	e.cancel = cancel
	go c.runPull(ctx, e.a.ID)
}

// stopLoopLocked must be called with c.mu held.
func (c *Controller) stopLoopLocked(e *agentEntry) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// runPull polls the queue for the agent until the agent parks (left
// Available, or at call capacity) or ctx is canceled. The poll interval
// doubles toward pullMax while the queue is empty and resets once work
// appears.
func (c *Controller) runPull(ctx context.Context, agentID string) {
	interval := c.pullMin
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		parked, empty := c.pullOnce(ctx, agentID)
		if parked {
			return
		}
		if empty {
			interval *= 2
			if interval > c.pullMax {
				interval = c.pullMax
			}
		} else {
			interval = c.pullMin
		}
		timer.Reset(interval)
	}
}

// pullOnce makes one attempt to pull and dial. It reports whether the loop
// should park (stale, or the agent reached capacity) and whether the queue
// looked empty (backoff).
//
// The call is reserved in the accounting before Originate runs, so a
// terminal notification that outruns the return of Originate finds the
// reservation and settles it (see SessionTerminated). pullOnce then only
// has to consume the earlySettled flag instead of registering a dead
// session, which would wedge the agent at capacity forever.
func (c *Controller) pullOnce(ctx context.Context, agentID string) (parked, empty bool) {
	c.mu.Lock()
	e := c.entries[agentID]
	if e == nil || e.a.Status != StatusAvailable {
		// Stale loop; drop its registration so a fresh one can start.
		if e != nil {
			c.stopLoopLocked(e)
		}
		c.mu.Unlock()
		return true, false
	}
	campaignID := e.a.CampaignID
	c.mu.Unlock()

	ok, err := c.limiter.Acquire(ctx, agentID)
	if err != nil {
		c.log.Error("call slot acquire failed", "agent_id", agentID, "err", err)
		return false, true
	}
	if !ok {
		// At capacity; wait for a terminal notification.
		return false, true
	}

	contact, token, err := c.queue.NextEligible(ctx, campaignID, agentID)
	if err != nil {
		_ = c.limiter.Release(ctx, agentID)
		if errors.Is(err, dialqueue.ErrEmpty) {
			return false, true
		}
		c.log.Error("queue pull failed", "agent_id", agentID, "campaign_id", campaignID, "err", err)
		return false, true
	}

	c.mu.Lock()
	e = c.entries[agentID]
	if e == nil {
		c.mu.Unlock()
		_ = c.limiter.Release(ctx, agentID)
		return true, false
	}
	e.inFlight++
	e.a.ActiveCalls++
	c.mu.Unlock()

	s, err := c.originator.Originate(ctx, contact, token, agentID)

	c.mu.Lock()
	e = c.entries[agentID]
	if e == nil {
		c.mu.Unlock()
		return true, false
	}
	now := c.clock().UTC()
	if err != nil {
		// The originator settled the contact. Its synchronous terminal
		// notification may already have consumed the reservation.
		releaseSlot := !e.earlySettled
		if e.earlySettled {
			e.earlySettled = false
		} else {
			e.inFlight--
			e.a.ActiveCalls--
		}
		e.a.UpdatedAt = now
		c.mu.Unlock()
		if releaseSlot {
			_ = c.limiter.Release(ctx, agentID)
		}
		// Keep pulling at the fast interval.
		return false, false
	}
	if e.earlySettled {
		// The call died before registration; accounting is already settled.
		e.earlySettled = false
		e.a.UpdatedAt = now
		c.mu.Unlock()
		return false, false
	}
	e.inFlight--
	e.live[s.ID] = struct{}{}
	e.a.ActiveSessionID = s.ID
	e.a.UpdatedAt = now
	atCapacity := e.a.ActiveCalls >= c.maxConcurrent
	if atCapacity {
		e.a.Status = StatusBusy
		c.stopLoopLocked(e)
	}
	c.mu.Unlock()
	return atCapacity, false
}
