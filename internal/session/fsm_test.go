package session

import (
	"testing"
	"time"

	"dialer-engine/internal/contacts"
	"dialer-engine/internal/gateway"
)

func TestApplyEvent_HappyPathToWrapUp(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateConnecting}

	res := applyEvent(&s, gateway.Event{Type: gateway.EventProgress, Seq: 1}, now)
	if !res.applied || s.State != StateRinging {
		t.Fatalf("progress: applied=%v state=%s", res.applied, s.State)
	}

	res = applyEvent(&s, gateway.Event{Type: gateway.EventAnswered, Seq: 2, Timestamp: now.Add(5 * time.Second)}, now)
	if !res.applied || s.State != StateAnswered {
		t.Fatalf("answered: applied=%v state=%s", res.applied, s.State)
	}
	if s.AnsweredAt.IsZero() {
		t.Fatalf("expected AnsweredAt to be set")
	}

	res = applyEvent(&s, gateway.Event{Type: gateway.EventCompleted, Seq: 3, Timestamp: now.Add(65 * time.Second)}, now)
	if !res.applied || !res.wrappedUp || s.State != StateWrapUp {
		t.Fatalf("completed: applied=%v wrappedUp=%v state=%s", res.applied, res.wrappedUp, s.State)
	}
	if got := s.Duration(); got != time.Minute {
		t.Fatalf("expected 60s talk time, got %v", got)
	}
}

func TestApplyEvent_StaleSequenceIgnored(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateRinging, LastSeq: 4}

	res := applyEvent(&s, gateway.Event{Type: gateway.EventAnswered, Seq: 4}, now)
	if res.applied {
		t.Fatalf("expected stale sequence to be ignored")
	}
	if s.State != StateRinging || s.LastSeq != 4 {
		t.Fatalf("state mutated by stale event: %s seq=%d", s.State, s.LastSeq)
	}
}

func TestApplyEvent_DuplicateAnsweredIgnored(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateAnswered, AnsweredAt: now}

	res := applyEvent(&s, gateway.Event{Type: gateway.EventAnswered}, now.Add(time.Second))
	if res.applied {
		t.Fatalf("expected answered-while-answered to be ignored")
	}
	if !s.AnsweredAt.Equal(now) {
		t.Fatalf("AnsweredAt rewritten by duplicate event")
	}
}

func TestApplyEvent_CompletedBeforeAnswerFails(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateRinging}

	res := applyEvent(&s, gateway.Event{Type: gateway.EventCompleted, Cause: "busy"}, now)
	if !res.applied || !res.terminal {
		t.Fatalf("expected terminal transition, got %+v", res)
	}
	if s.State != StateFailed || s.Cause != CauseBusy {
		t.Fatalf("expected failed/busy, got %s/%s", s.State, s.Cause)
	}
	if s.Outcome() != contacts.OutcomeBusy {
		t.Fatalf("expected busy outcome, got %s", s.Outcome())
	}
}

func TestApplyEvent_CompletedBeforeAnswerDefaultsToNoAnswer(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateConnecting}

	applyEvent(&s, gateway.Event{Type: gateway.EventCompleted}, now)
	if s.Cause != CauseNoAnswer {
		t.Fatalf("expected no_answer fallback, got %s", s.Cause)
	}
}

func TestApplyEvent_TerminalSessionIsFrozen(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateFailed, Cause: CauseTimeout, EndedAt: now}

	for _, typ := range []gateway.EventType{gateway.EventProgress, gateway.EventAnswered, gateway.EventCompleted, gateway.EventFailed} {
		res := applyEvent(&s, gateway.Event{Type: typ}, now.Add(time.Second))
		if res.applied {
			t.Fatalf("event %s mutated a terminal session", typ)
		}
	}
	if s.Cause != CauseTimeout || !s.EndedAt.Equal(now) {
		t.Fatalf("terminal session changed: %+v", s)
	}
}

func TestApplyEvent_FailedMidCallWrapsUp(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{ID: "s-1", State: StateAnswered, AnsweredAt: now}

	res := applyEvent(&s, gateway.Event{Type: gateway.EventFailed, Timestamp: now.Add(30 * time.Second)}, now)
	if !res.applied || !res.wrappedUp || s.State != StateWrapUp {
		t.Fatalf("expected answered call to wrap up on gateway failure, got %+v state=%s", res, s.State)
	}
}

func TestForceRingTimeout(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	s := Session{State: StateRinging}
	if !forceRingTimeout(&s, now) {
		t.Fatalf("expected ringing session to time out")
	}
	if s.State != StateFailed || s.Cause != CauseTimeout {
		t.Fatalf("expected failed/timeout, got %s/%s", s.State, s.Cause)
	}

	s = Session{State: StateAnswered}
	if forceRingTimeout(&s, now) {
		t.Fatalf("answered session must not be timed out")
	}
	s = Session{State: StateFailed}
	if forceRingTimeout(&s, now) {
		t.Fatalf("terminal session must not be timed out")
	}
}

func TestEndByAgent_OnlyFromAnswered(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()

	s := Session{State: StateAnswered, AnsweredAt: now.Add(-time.Minute)}
	if !endByAgent(&s, now) {
		t.Fatalf("expected answered call to end")
	}
	if s.State != StateWrapUp || s.Duration() != time.Minute {
		t.Fatalf("expected wrap_up with 60s talk time, got %s %v", s.State, s.Duration())
	}

	for _, st := range []State{StateIdle, StateConnecting, StateRinging, StateWrapUp, StateEnded, StateFailed} {
		s := Session{State: st}
		if endByAgent(&s, now) {
			t.Fatalf("end from %s should be rejected", st)
		}
	}
}

func TestSessionOutcome_AnsweredWithoutCauseIsContacted(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	s := Session{State: StateEnded, AnsweredAt: now, EndedAt: now.Add(time.Minute)}
	if s.Outcome() != contacts.OutcomeContacted {
		t.Fatalf("expected contacted, got %s", s.Outcome())
	}
}
