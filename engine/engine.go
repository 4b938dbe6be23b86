// Package engine is the boundary to the storage engine that executes
// descriptors. Calls pass raw addresses of descriptor and scratch memory.
package engine

import (
	"fmt"
	"time"
)

// Handle identifies an engine-side event queue.
type Handle uint64

// Engine executes descriptors and reports asynchronous completions per queue.
type Engine interface {
	CreateEventQueue(capacity int) (Handle, error)
	DestroyEventQueue(h Handle) error
	// PollCompleted writes [u16 count][u16 id]*count of finished events
	// into scratch, waiting at most timeout for the first one.
	PollCompleted(h Handle, scratch uintptr, capacity int, timeout time.Duration) error
	// Submit runs a synchronous descriptor to completion or enqueues an
	// asynchronous one.
	Submit(desc uintptr) error
	// AbortEvent cancels an asynchronous submission. After a nil return the
	// descriptor is no longer accessed; the id is still reported by a later poll.
	AbortEvent(h Handle, id uint16) error
}

type Status int32

const (
	StatusOK       Status = 0
	StatusInvalid  Status = -1003
	StatusNonexist Status = -1005
	StatusBusy     Status = -1012
	StatusCanceled Status = -1018
	StatusIO       Status = -2001
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid"
	case StatusNonexist:
		return "nonexistent"
	case StatusBusy:
		return "busy"
	case StatusCanceled:
		return "canceled"
	case StatusIO:
		return "io error"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// StatusError is a non-OK engine status.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine %s: %s (%d)", e.Op, e.Status, int32(e.Status))
}

// Is matches any *StatusError with the same status.
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

// NewStatusError returns a *StatusError for op.
func NewStatusError(op string, status Status) error {
	return &StatusError{Op: op, Status: status}
}
