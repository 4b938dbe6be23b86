package eventqueue

import (
	"fmt"
	"time"
)

// Policy controls blocking waits and stall detection.
type Policy struct {
	// WarnTimeouts consecutive empty polls log a warning.
	WarnTimeouts int
	// ErrorTimeouts consecutive empty polls fail with a StalledError once
	// nothing completed for NoProgress.
	ErrorTimeouts int
	NoProgress    time.Duration
	// FreeSpins polls with a zero timeout before backing off.
	FreeSpins  int
	MaxBackoff time.Duration
	// IdleWait is the poll timeout of WaitForCompletion after an empty poll.
	IdleWait time.Duration
	// CheckEvery failed attempts the policy is evaluated.
	CheckEvery int
}

func DefaultPolicy() Policy {
	return Policy{
		WarnTimeouts:  20,
		ErrorTimeouts: 50,
		NoProgress:    5 * time.Second,
		FreeSpins:     5,
		MaxBackoff:    100 * time.Millisecond,
		IdleWait:      10 * time.Millisecond,
		CheckEvery:    10,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.WarnTimeouts <= 0 || p.ErrorTimeouts < p.WarnTimeouts:
		return fmt.Errorf("timeouts: need 0 < warn (%d) <= error (%d)", p.WarnTimeouts, p.ErrorTimeouts)
	case p.NoProgress <= 0:
		return fmt.Errorf("no progress duration %s must be positive", p.NoProgress)
	case p.FreeSpins < 0:
		return fmt.Errorf("free spins %d must not be negative", p.FreeSpins)
	case p.MaxBackoff <= 0 || p.IdleWait <= 0:
		return fmt.Errorf("backoff %s and idle wait %s must be positive", p.MaxBackoff, p.IdleWait)
	case p.CheckEvery <= 0:
		return fmt.Errorf("check interval %d must be positive", p.CheckEvery)
	}
	return nil
}

// backoff is the poll timeout of the given failed attempt, clipped to remaining.
func (p Policy) backoff(attempt int, remaining time.Duration) time.Duration {
	if attempt <= p.FreeSpins {
		return 0
	}
	shift := attempt - p.FreeSpins - 1
	if shift > 20 {
		shift = 20
	}
	d := time.Millisecond << uint(shift)
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d > remaining {
		d = remaining
	}
	return d
}

type progress struct {
	timeouts int
	last     time.Time
}

func (p *progress) completed(now time.Time) {
	p.timeouts = 0
	p.last = now
}

// check applies the policy to the current counters. warn reports whether a
// warning is due; err is set once the queue counts as stalled.
func (p Policy) check(pr progress, now time.Time, owner string) (warn bool, err error) {
	if pr.timeouts < p.WarnTimeouts {
		return false, nil
	}
	since := now.Sub(pr.last)
	if pr.timeouts >= p.ErrorTimeouts && since > p.NoProgress {
		return false, &StalledError{Owner: owner, Timeouts: pr.timeouts, Since: since}
	}
	return true, nil
}
