package dialqueue

import "time"

// Policy controls retry scheduling for contacts that did not connect.
//
// The delay doubles per completed attempt and is capped: base 5m gives
// 5m, 10m, 20m, ... up to Cap. A contact is retired as exhausted once
// MaxAttempts is reached.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func (p Policy) withDefaults() Policy {
	out := p
	if out.Base <= 0 {
		out.Base = 5 * time.Minute
	}
	if out.Cap <= 0 {
		out.Cap = 24 * time.Hour
	}
	if out.Cap < out.Base {
		out.Cap = out.Base
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 5
	}
	return out
}

// Delay returns the wait before the next attempt, given the number of
// attempts already completed. Delay(1) == Base.
func (p Policy) Delay(attemptsCompleted int) time.Duration {
	p = p.withDefaults()
	if attemptsCompleted < 1 {
		attemptsCompleted = 1
	}

	d := p.Base
	for i := 1; i < attemptsCompleted; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (p Policy) Exhausted(attemptsCompleted int) bool {
	p = p.withDefaults()
	return attemptsCompleted >= p.MaxAttempts
}
