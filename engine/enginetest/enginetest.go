// Package enginetest provides a scripted engine: submissions stay in flight
// until a test completes them.
package enginetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
)

type queue struct {
	capacity int
	inflight map[uint16]*desc.Request
	pending  []uint16
}

type Engine struct {
	mu     sync.Mutex
	next   engine.Handle
	queues map[engine.Handle]*queue
	aborts map[uint16]int

	// Sleep is called with the poll timeout when nothing is pending.
	Sleep func(time.Duration)
	// Execute serves synchronous descriptors. Nil answers OK with full sizes.
	Execute func(req *desc.Request) (int32, []uint32)

	SubmitErr  error
	AbortErr   error
	PollErr    error
	DestroyErr error

	Submits   int
	Polls     int
	Destroyed []engine.Handle
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		queues: map[engine.Handle]*queue{},
		aborts: map[uint16]int{},
		Sleep:  time.Sleep,
	}
}

func (e *Engine) CreateEventQueue(capacity int) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.queues[e.next] = &queue{capacity: capacity, inflight: map[uint16]*desc.Request{}}
	return e.next, nil
}

func (e *Engine) DestroyEventQueue(h engine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DestroyErr != nil {
		return e.DestroyErr
	}
	if _, ok := e.queues[h]; !ok {
		return engine.NewStatusError("destroy", engine.StatusNonexist)
	}
	delete(e.queues, h)
	e.Destroyed = append(e.Destroyed, h)
	return nil
}

func fullSizes(req *desc.Request) []uint32 {
	sizes := make([]uint32, len(req.Entries))
	for i, en := range req.Entries {
		sizes[i] = en.Length
	}
	return sizes
}

func (e *Engine) Submit(addr uintptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Submits++
	if e.SubmitErr != nil {
		return e.SubmitErr
	}
	buf, err := desc.ViewDescriptor(addr)
	if err != nil {
		return err
	}
	req, err := desc.Decode(buf)
	if err != nil {
		return err
	}
	if !req.Async() {
		status, sizes := int32(0), fullSizes(req)
		if e.Execute != nil {
			status, sizes = e.Execute(req)
		}
		return req.SetResult(status, sizes)
	}
	q, ok := e.queues[engine.Handle(req.Handle)]
	if !ok {
		return engine.NewStatusError("submit", engine.StatusNonexist)
	}
	if _, busy := q.inflight[req.EventID]; busy {
		return engine.NewStatusError("submit", engine.StatusBusy)
	}
	q.inflight[req.EventID] = req
	return nil
}

// InFlight lists the submitted, uncompleted event ids of h.
func (e *Engine) InFlight(h engine.Handle) []uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []uint16
	for id := range e.queues[h].inflight {
		ids = append(ids, id)
	}
	return ids
}

// Request returns the decoded in-flight request of event id.
func (e *Engine) Request(h engine.Handle, id uint16) *desc.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[h].inflight[id]
}

// Complete finishes in-flight events with status OK and full sizes, in the
// given order.
func (e *Engine) Complete(h engine.Handle, ids ...uint16) error {
	for _, id := range ids {
		if err := e.CompleteWith(h, id, func(req *desc.Request) (int32, []uint32) {
			return 0, fullSizes(req)
		}); err != nil {
			return err
		}
	}
	return nil
}

// CompleteWith finishes event id with the result fn computes.
func (e *Engine) CompleteWith(h engine.Handle, id uint16, fn func(req *desc.Request) (int32, []uint32)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[h]
	if !ok {
		return fmt.Errorf("no queue %d", h)
	}
	req, ok := q.inflight[id]
	if !ok {
		return fmt.Errorf("event %d not in flight", id)
	}
	status, sizes := fn(req)
	if err := req.SetResult(status, sizes); err != nil {
		return err
	}
	delete(q.inflight, id)
	q.pending = append(q.pending, id)
	return nil
}

// Report queues ids for the next poll without touching any descriptor.
func (e *Engine) Report(h engine.Handle, ids ...uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[h]
	q.pending = append(q.pending, ids...)
}

func (e *Engine) AbortEvent(h engine.Handle, id uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborts[id]++
	if e.AbortErr != nil {
		return e.AbortErr
	}
	q, ok := e.queues[h]
	if !ok {
		return engine.NewStatusError("abort", engine.StatusNonexist)
	}
	if _, ok := q.inflight[id]; ok {
		delete(q.inflight, id)
		q.pending = append(q.pending, id)
	}
	return nil
}

// Aborts is how many times AbortEvent was called for id.
func (e *Engine) Aborts(id uint16) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborts[id]
}

func (e *Engine) take(h engine.Handle, capacity int) ([]uint16, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[h]
	if !ok {
		return nil, engine.NewStatusError("poll", engine.StatusNonexist)
	}
	n := len(q.pending)
	if n > capacity {
		n = capacity
	}
	ids := append([]uint16(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	return ids, nil
}

func (e *Engine) PollCompleted(h engine.Handle, scratch uintptr, capacity int, timeout time.Duration) error {
	e.mu.Lock()
	e.Polls++
	perr := e.PollErr
	e.mu.Unlock()
	if perr != nil {
		return perr
	}
	ids, err := e.take(h, capacity)
	if err != nil {
		return err
	}
	if len(ids) == 0 && timeout > 0 {
		e.Sleep(timeout)
		if ids, err = e.take(h, capacity); err != nil {
			return err
		}
	}
	desc.EncodeCompleted(desc.View(scratch, desc.CompletedSize(capacity)), ids)
	return nil
}
