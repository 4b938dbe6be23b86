package eventqueue

import (
	"fmt"

	"github.com/rarydzu/monoio/operation"
)

type EventState int

const (
	EventAvailable EventState = iota
	EventAcquired
	EventSubmitted
)

func (s EventState) String() string {
	switch s {
	case EventAvailable:
		return "available"
	case EventAcquired:
		return "acquired"
	case EventSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("event state(%d)", int(s))
}

// Event is one completion slot of a Queue. Its id never changes and is what
// the engine reports back on completion.
type Event struct {
	q     *Queue
	id    uint16
	state EventState
	op    operation.Operation
}

var _ operation.Event = (*Event)(nil)

func (e *Event) ID() uint16                     { return e.id }
func (e *Event) Handle() uint64                 { return uint64(e.q.handle) }
func (e *Event) State() EventState              { return e.state }
func (e *Event) Operation() operation.Operation { return e.op }

// Attach binds op to an acquired event.
func (e *Event) Attach(op operation.Operation) error {
	if e.state != EventAcquired {
		return fmt.Errorf("%w: attach to %s event %d", operation.ErrIllegalState, e.state, e.id)
	}
	if e.op != nil {
		return fmt.Errorf("%w: event %d already carries an operation", operation.ErrIllegalState, e.id)
	}
	if err := op.Bind(e); err != nil {
		return err
	}
	e.op = op
	return nil
}

// Abort cancels the event's submission. An event that never reached the
// engine goes straight back to the pool; a submitted one stays taken until
// the engine reports its id.
func (e *Event) Abort() error {
	switch e.state {
	case EventAcquired:
		e.q.recycle(e)
		return nil
	case EventSubmitted:
		return e.q.abort(e)
	}
	return nil
}
