package eventqueue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches a *TimeoutError. The caller may retry.
	ErrTimeout = errors.New("event queue timeout")
	// ErrStalled matches a *StalledError. The queue should be abandoned.
	ErrStalled   = errors.New("event queue stalled")
	ErrDestroyed = errors.New("event queue destroyed")
)

type TimeoutError struct {
	Op       string
	Owner    string
	Waited   time.Duration
	Acquired int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on queue %q: timed out after %s with %d events acquired", e.Op, e.Owner, e.Waited, e.Acquired)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type StalledError struct {
	Owner    string
	Timeouts int
	Since    time.Duration
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("queue %q stalled: %d consecutive timeouts, no completion for %s", e.Owner, e.Timeouts, e.Since)
}

func (e *StalledError) Is(target error) bool {
	return target == ErrStalled
}

// NativeError is a failed engine call.
type NativeError struct {
	Op  string
	Err error
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}
