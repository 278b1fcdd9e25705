package session

import (
	"time"

	"dialer-engine/internal/gateway"
)

// applyResult describes what a gateway event did to a session.
type applyResult struct {
	applied bool
	// ignoreReason is set when the event was a no-op (duplicate, stale
	// sequence, or not a valid transition from the current state).
	ignoreReason string
	// terminal is true when this event moved the session into Ended/Failed.
	terminal bool
	// wrappedUp is true when this event moved the session into WrapUp.
	wrappedUp bool
}

// applyEvent advances the session state machine by one gateway event.
// Callers must hold the session's entry lock.
//
// Invalid transitions are reported, not rejected: the webhook contract is
// at-least-once with reordering, so "event does not fit" is normal traffic.
func applyEvent(s *Session, ev gateway.Event, now time.Time) applyResult {
	if s.State.Terminal() {
		return applyResult{ignoreReason: "session already terminal"}
	}

	// Sequence guard: the gateway numbers events per session; anything at
	// or below the high-water mark is a duplicate or arrived late.
	if ev.Seq > 0 {
		if ev.Seq <= s.LastSeq {
			return applyResult{ignoreReason: "stale sequence"}
		}
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = now
	}

	var res applyResult
	switch ev.Type {
	case gateway.EventProgress:
		switch s.State {
		case StateConnecting:
			s.State = StateRinging
			res.applied = true
		default:
			return applyResult{ignoreReason: "progress not applicable"}
		}

	case gateway.EventAnswered:
		switch s.State {
		case StateConnecting, StateRinging:
			s.State = StateAnswered
			s.AnsweredAt = ts
			res.applied = true
		default:
			return applyResult{ignoreReason: "answered not applicable"}
		}

	case gateway.EventCompleted:
		switch s.State {
		case StateConnecting, StateRinging:
			// Completed before answer: the call never connected.
			s.State = StateFailed
			s.Cause = failureCause(ev.Cause, CauseNoAnswer)
			s.EndedAt = ts
			res.applied = true
			res.terminal = true
		case StateAnswered:
			// Remote hangup: agent enters disposition during wrap-up.
			s.State = StateWrapUp
			s.EndedAt = ts
			res.applied = true
			res.wrappedUp = true
		default:
			return applyResult{ignoreReason: "completed not applicable"}
		}

	case gateway.EventFailed:
		switch s.State {
		case StateConnecting, StateRinging:
			s.State = StateFailed
			s.Cause = failureCause(ev.Cause, CauseFailed)
			s.EndedAt = ts
			res.applied = true
			res.terminal = true
		case StateAnswered:
			// Mid-call gateway error still ends an answered call; the
			// agent dispositions it like any other ended call.
			s.State = StateWrapUp
			s.EndedAt = ts
			res.applied = true
			res.wrappedUp = true
		default:
			return applyResult{ignoreReason: "failed not applicable"}
		}

	default:
		return applyResult{ignoreReason: "unknown event type"}
	}

	if ev.Seq > 0 {
		s.LastSeq = ev.Seq
	}
	return res
}

// forceRingTimeout fails a session that never saw progress/answer within
// the ring window. Callers must hold the session's entry lock.
func forceRingTimeout(s *Session, now time.Time) bool {
	switch s.State {
	case StateConnecting, StateRinging:
		s.State = StateFailed
		s.Cause = CauseTimeout
		s.EndedAt = now
		return true
	default:
		return false
	}
}

// endByAgent moves an answered call to wrap-up. This is a state
// transition, not a cancellation: once Connecting is issued there is no
// way to cancel at the gateway, the agent can only end the call.
func endByAgent(s *Session, now time.Time) bool {
	if s.State != StateAnswered {
		return false
	}
	s.State = StateWrapUp
	s.EndedAt = now
	return true
}

func failureCause(raw string, fallback Cause) Cause {
	switch Cause(raw) {
	case CauseNoAnswer, CauseBusy, CauseRejected, CauseFailed, CauseTimeout:
		return Cause(raw)
	default:
		return fallback
	}
}
