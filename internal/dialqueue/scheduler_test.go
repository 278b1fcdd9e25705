package dialqueue

import (
	"context"
	"testing"
	"time"

	"dialer-engine/internal/contacts"
)

func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *contacts.MemoryRepo) {
	t.Helper()
	repo := contacts.NewMemoryRepo()
	locks := contacts.NewLockManager(repo, nil, nil, time.Minute, time.Second, nil)
	s := NewScheduler(repo, locks, Policy{Base: 5 * time.Minute, Cap: 24 * time.Hour, MaxAttempts: 3}, nil)
	s.clock = func() time.Time { return now }
	return s, repo
}

func put(t *testing.T, repo *contacts.MemoryRepo, c contacts.Contact) {
	t.Helper()
	if c.CampaignID == "" {
		c.CampaignID = "camp-1"
	}
	if c.Phone == "" {
		c.Phone = "+15550002222"
	}
	if c.Status == "" {
		c.Status = contacts.StatusNew
	}
	if err := repo.Put(context.Background(), c); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestNextEligible_LocksAndReturnsContact(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now})

	c, tok, err := s.NextEligible(context.Background(), "camp-1", "agent-a")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if c.ID != "c-1" || tok.Owner != "agent-a" {
		t.Fatalf("unexpected pick: %+v %+v", c, tok)
	}

	// The same contact is no longer visible to a second agent.
	if _, _, err := s.NextEligible(context.Background(), "camp-1", "agent-b"); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestNextEligible_SkipsContendedCandidate(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now.Add(-2 * time.Hour)})
	put(t, repo, contacts.Contact{ID: "c-2", EnqueuedAt: now.Add(-1 * time.Hour)})

	// Agent B grabs the head of the queue out from under agent A's read.
	if _, _, err := s.NextEligible(context.Background(), "camp-1", "agent-b"); err != nil {
		t.Fatalf("agent-b next: %v", err)
	}

	c, _, err := s.NextEligible(context.Background(), "camp-1", "agent-a")
	if err != nil {
		t.Fatalf("agent-a next: %v", err)
	}
	if c.ID != "c-2" {
		t.Fatalf("expected fallback to c-2, got %s", c.ID)
	}
}

func TestNextEligible_EmptyQueue(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, _ := newTestScheduler(t, now)

	if _, _, err := s.NextEligible(context.Background(), "camp-1", "agent-a"); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestReschedule_NoAnswerBacksOff(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now})

	if err := s.Reschedule(context.Background(), "c-1", contacts.OutcomeNoAnswer, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	c, _ := repo.Get(context.Background(), "c-1")
	if c.AttemptCount != 1 {
		t.Fatalf("expected attempt_count 1, got %d", c.AttemptCount)
	}
	if c.Status != contacts.StatusQueued {
		t.Fatalf("expected queued, got %s", c.Status)
	}
	if !c.NextAttemptAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected next attempt at now+5m, got %v", c.NextAttemptAt)
	}
	if c.LastOutcome != contacts.OutcomeNoAnswer {
		t.Fatalf("expected no_answer outcome, got %s", c.LastOutcome)
	}
}

func TestReschedule_BackoffGrowsPerAttempt(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now, AttemptCount: 1})

	if err := s.Reschedule(context.Background(), "c-1", contacts.OutcomeBusy, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	c, _ := repo.Get(context.Background(), "c-1")
	if c.AttemptCount != 2 {
		t.Fatalf("expected attempt_count 2, got %d", c.AttemptCount)
	}
	if !c.NextAttemptAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expected next attempt at now+10m, got %v", c.NextAttemptAt)
	}
}

func TestReschedule_ExhaustsAtMaxAttempts(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now, AttemptCount: 2})

	// Third completed attempt hits MaxAttempts = 3 exactly.
	if err := s.Reschedule(context.Background(), "c-1", contacts.OutcomeNoAnswer, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	c, _ := repo.Get(context.Background(), "c-1")
	if c.Status != contacts.StatusExhausted {
		t.Fatalf("expected exhausted, got %s", c.Status)
	}
	if c.AttemptCount != 3 {
		t.Fatalf("expected attempt_count 3, got %d", c.AttemptCount)
	}
}

func TestReschedule_SuccessRetiresContact(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now})

	if err := s.Reschedule(context.Background(), "c-1", contacts.OutcomeContacted, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	c, _ := repo.Get(context.Background(), "c-1")
	if c.Status != contacts.StatusContacted {
		t.Fatalf("expected contacted, got %s", c.Status)
	}
}

func TestReschedule_InvalidNumberRetiresAsUnreachable(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, repo := newTestScheduler(t, now)
	put(t, repo, contacts.Contact{ID: "c-1", EnqueuedAt: now})

	if err := s.Reschedule(context.Background(), "c-1", contacts.OutcomeInvalidNumber, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// A bad number never becomes a conversation: contacted stays reserved
	// for success, and the contact leaves the queue for good.
	c, _ := repo.Get(context.Background(), "c-1")
	if c.Status != contacts.StatusUnreachable {
		t.Fatalf("expected unreachable, got %s", c.Status)
	}
	if c.Dialable(now.Add(48 * time.Hour)) {
		t.Fatalf("unreachable contact must not be dialable")
	}
}

func TestReschedule_UnknownContactRejected(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s, _ := newTestScheduler(t, now)

	if err := s.Reschedule(context.Background(), "ghost", contacts.OutcomeNoAnswer, now); err != contacts.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
