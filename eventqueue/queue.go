// Package eventqueue correlates asynchronous engine completions with the
// operations that were submitted. A Queue belongs to one worker goroutine and
// is not safe for concurrent use; only Stats may be read from elsewhere.
package eventqueue

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jacobsa/timeutil"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
	"github.com/rarydzu/monoio/operation"
	"go.uber.org/zap"
)

// MaxCapacity is the largest number of events a queue can hold.
const MaxCapacity = 32767

type Config struct {
	Owner    string
	Capacity int
	Policy   Policy
}

type Option func(*Queue)

func WithClock(clock timeutil.Clock) Option {
	return func(q *Queue) { q.clock = clock }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(q *Queue) { q.log = log }
}

// WithWarnLimiter shares a stall warning limiter between queues. Warnings
// are rate limited per owner.
func WithWarnLimiter(l *catrate.Limiter) Option {
	return func(q *Queue) { q.warn = l }
}

// NewWarnLimiter allows one stall warning per second and ten per minute.
func NewWarnLimiter() *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	})
}

type Stats struct {
	Owner               string
	Capacity            int
	Acquired            int
	Submitted           uint64
	Completed           uint64
	Discarded           uint64
	Timeouts            uint64
	Stalls              uint64
	ConsecutiveTimeouts int
	LastProgress        time.Time
}

type counters struct {
	acquired  atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	discarded atomic.Uint64
	timeouts  atomic.Uint64
	stalls    atomic.Uint64
	streak    atomic.Int64
	last      atomic.Int64
}

type Queue struct {
	eng      engine.Engine
	handle   engine.Handle
	owner    string
	policy   Policy
	events   []*Event
	acquired int
	cursor   int
	scratch  *desc.Region
	ids      []uint16
	progress progress
	clock    timeutil.Clock
	log      *zap.SugaredLogger
	warn     *catrate.Limiter
	stats    counters
	closed   bool
}

// New creates the engine queue and cfg.Capacity events.
func New(eng engine.Engine, cfg Config, opts ...Option) (*Queue, error) {
	if cfg.Capacity <= 0 || cfg.Capacity > MaxCapacity {
		return nil, fmt.Errorf("queue capacity %d out of range 1..%d", cfg.Capacity, MaxCapacity)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	q := &Queue{
		eng:    eng,
		owner:  cfg.Owner,
		policy: cfg.Policy,
		events: make([]*Event, cfg.Capacity),
		ids:    make([]uint16, 0, cfg.Capacity),
		clock:  timeutil.RealClock(),
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.warn == nil {
		q.warn = NewWarnLimiter()
	}
	scratch, err := desc.Alloc(desc.CompletedSize(cfg.Capacity))
	if err != nil {
		return nil, err
	}
	h, err := eng.CreateEventQueue(cfg.Capacity)
	if err != nil {
		scratch.Free()
		return nil, &NativeError{Op: "create queue", Err: err}
	}
	q.handle = h
	q.scratch = scratch
	for i := range q.events {
		q.events[i] = &Event{q: q, id: uint16(i)}
	}
	q.progress.completed(q.clock.Now())
	q.stats.last.Store(q.progress.last.UnixNano())
	q.log.Debugw("event queue created", "owner", q.owner, "capacity", cfg.Capacity, "handle", h)
	return q, nil
}

func (q *Queue) Owner() string         { return q.owner }
func (q *Queue) Handle() engine.Handle { return q.handle }
func (q *Queue) Capacity() int         { return len(q.events) }
func (q *Queue) Acquired() int         { return q.acquired }

// Event returns slot id.
func (q *Queue) Event(id uint16) *Event {
	if int(id) >= len(q.events) {
		return nil
	}
	return q.events[id]
}

// AcquireEvent takes the next free event scanning round robin from the
// last one handed out. It returns nil when none is free.
func (q *Queue) AcquireEvent() *Event {
	if q.closed || q.acquired >= len(q.events) {
		return nil
	}
	n := len(q.events)
	for i := 0; i < n; i++ {
		idx := (q.cursor + i) % n
		ev := q.events[idx]
		if ev.state != EventAvailable {
			continue
		}
		ev.state = EventAcquired
		q.cursor = (idx + 1) % n
		if q.acquired == 0 {
			// an idle queue is not a stalled one
			q.progress.last = q.clock.Now()
			q.stats.last.Store(q.progress.last.UnixNano())
		}
		q.acquired++
		q.stats.acquired.Store(int64(q.acquired))
		return ev
	}
	return nil
}

// ReturnEvent puts an acquired, never submitted event back.
func (q *Queue) ReturnEvent(ev *Event) error {
	if ev.q != q || ev.state != EventAcquired {
		return fmt.Errorf("%w: return of %s event %d", operation.ErrIllegalState, ev.state, ev.id)
	}
	if ev.op != nil {
		if err := ev.op.Unbind(); err != nil {
			return err
		}
	}
	q.recycle(ev)
	return nil
}

func (q *Queue) recycle(ev *Event) {
	ev.state = EventAvailable
	ev.op = nil
	q.acquired--
	q.stats.acquired.Store(int64(q.acquired))
}

func (q *Queue) abort(ev *Event) error {
	if q.closed {
		// the engine dropped the whole queue with its requests
		return nil
	}
	if err := q.eng.AbortEvent(q.handle, ev.id); err != nil {
		return &NativeError{Op: fmt.Sprintf("abort event %d", ev.id), Err: err}
	}
	return nil
}

// Submit encodes the attached operation and hands it to the engine.
func (q *Queue) Submit(ev *Event) error {
	if q.closed {
		return ErrDestroyed
	}
	if ev.q != q || ev.state != EventAcquired || ev.op == nil {
		return fmt.Errorf("%w: submit of %s event %d", operation.ErrIllegalState, ev.state, ev.id)
	}
	if err := ev.op.Encode(); err != nil {
		return err
	}
	if err := q.eng.Submit(ev.op.Addr()); err != nil {
		return &NativeError{Op: "submit", Err: err}
	}
	ev.state = EventSubmitted
	q.stats.submitted.Add(1)
	return nil
}

// PollCompleted asks the engine for finished events, waiting at most
// timeout. Every completed operation is parsed and appended to completed
// when it is not nil. Discarded operations free their slot but are neither
// parsed nor returned. It returns the number of slots freed.
func (q *Queue) PollCompleted(completed *[]operation.Operation, timeout time.Duration) (int, error) {
	if q.closed {
		return 0, ErrDestroyed
	}
	if err := q.eng.PollCompleted(q.handle, q.scratch.Addr(), len(q.events), timeout); err != nil {
		return 0, &NativeError{Op: "poll", Err: err}
	}
	ids, err := desc.DecodeCompleted(q.scratch.Bytes(), q.ids[:0])
	q.ids = ids
	if err != nil {
		return 0, &NativeError{Op: "poll", Err: err}
	}
	var errs []error
	n := 0
	for _, id := range ids {
		if int(id) >= len(q.events) || q.events[id].state != EventSubmitted {
			errs = append(errs, &NativeError{Op: "poll", Err: fmt.Errorf("completion for unknown event %d", id)})
			continue
		}
		ev := q.events[id]
		op := ev.op
		q.recycle(ev)
		n++
		if op.Discarded() {
			q.stats.discarded.Add(1)
			if err := op.Unbind(); err != nil {
				q.log.Warnw("freeing discarded operation", "owner", q.owner, "event", id, "error", err)
			}
			continue
		}
		if err := op.Ready(); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", id, err))
			continue
		}
		if completed != nil {
			*completed = append(*completed, op)
		}
	}
	if n > 0 {
		q.progress.completed(q.clock.Now())
		q.stats.completed.Add(uint64(n))
		q.stats.streak.Store(0)
		q.stats.last.Store(q.progress.last.UnixNano())
	}
	return n, errors.Join(errs...)
}

func (q *Queue) timedOut() {
	q.progress.timeouts++
	q.stats.timeouts.Add(1)
	q.stats.streak.Store(int64(q.progress.timeouts))
}

func (q *Queue) checkProgress() error {
	warn, err := q.policy.check(q.progress, q.clock.Now(), q.owner)
	if err != nil {
		q.stats.stalls.Add(1)
		q.log.Errorw("event queue stalled", "owner", q.owner, "error", err, "acquired", q.acquired)
		return err
	}
	if warn {
		if _, ok := q.warn.Allow(q.owner); ok {
			q.log.Warnw("event queue is not making progress",
				"owner", q.owner,
				"timeouts", q.progress.timeouts,
				"since", q.clock.Now().Sub(q.progress.last),
				"acquired", q.acquired)
		}
	}
	return nil
}

// AcquireEventBlocking acquires an event, polling completions into
// completed while the queue is full. It fails with a *TimeoutError after
// maxWait and with a *StalledError when the engine stopped making progress.
func (q *Queue) AcquireEventBlocking(maxWait time.Duration, completed *[]operation.Operation) (*Event, error) {
	if q.closed {
		return nil, ErrDestroyed
	}
	if ev := q.AcquireEvent(); ev != nil {
		return ev, nil
	}
	start := q.clock.Now()
	for attempt := 1; ; attempt++ {
		elapsed := q.clock.Now().Sub(start)
		if elapsed >= maxWait {
			return nil, &TimeoutError{Op: "acquire event", Owner: q.owner, Waited: elapsed, Acquired: q.acquired}
		}
		n, err := q.PollCompleted(completed, q.policy.backoff(attempt, maxWait-elapsed))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			if ev := q.AcquireEvent(); ev != nil {
				return ev, nil
			}
			continue
		}
		q.timedOut()
		if attempt%q.policy.CheckEvery == 0 {
			if err := q.checkProgress(); err != nil {
				return nil, err
			}
		}
	}
}

// WaitForCompletion polls until no event is acquired. It fails with a
// *TimeoutError after maxWait.
func (q *Queue) WaitForCompletion(maxWait time.Duration, completed *[]operation.Operation) error {
	if q.closed {
		return ErrDestroyed
	}
	start := q.clock.Now()
	var wait time.Duration
	for attempt := 1; q.acquired > 0; {
		elapsed := q.clock.Now().Sub(start)
		if elapsed >= maxWait {
			return &TimeoutError{Op: "wait for completion", Owner: q.owner, Waited: elapsed, Acquired: q.acquired}
		}
		if wait > maxWait-elapsed {
			wait = maxWait - elapsed
		}
		n, err := q.PollCompleted(completed, wait)
		if err != nil {
			return err
		}
		if n > 0 {
			wait = 0
			continue
		}
		wait = q.policy.IdleWait
		q.timedOut()
		if attempt%q.policy.CheckEvery == 0 {
			if err := q.checkProgress(); err != nil {
				return err
			}
		}
		attempt++
	}
	return nil
}

// Destroy releases the engine queue. The queue cannot be used afterwards.
// Operations still bound to an event are discarded and unbound, which also
// frees those whose release was waiting for the completion. When the engine
// fails to drop the queue they stay bound since it may still write to them.
// The owning worker must not use the queue concurrently.
func (q *Queue) Destroy() error {
	if q.closed {
		return nil
	}
	q.closed = true
	var errs []error
	destroyed := true
	if err := q.eng.DestroyEventQueue(q.handle); err != nil {
		destroyed = false
		errs = append(errs, &NativeError{Op: "destroy queue", Err: err})
	}
	for _, ev := range q.events {
		if ev.state == EventAvailable {
			continue
		}
		op := ev.op
		if op != nil {
			op.Discard()
			q.stats.discarded.Add(1)
		}
		if !destroyed {
			continue
		}
		if op != nil {
			if err := op.Unbind(); err != nil {
				errs = append(errs, fmt.Errorf("event %d: %w", ev.id, err))
			}
		}
		q.recycle(ev)
	}
	if err := q.scratch.Free(); err != nil {
		errs = append(errs, err)
	}
	q.log.Debugw("event queue destroyed", "owner", q.owner, "handle", q.handle)
	return errors.Join(errs...)
}

// Stats is safe to call from any goroutine.
func (q *Queue) Stats() Stats {
	return Stats{
		Owner:               q.owner,
		Capacity:            len(q.events),
		Acquired:            int(q.stats.acquired.Load()),
		Submitted:           q.stats.submitted.Load(),
		Completed:           q.stats.completed.Load(),
		Discarded:           q.stats.discarded.Load(),
		Timeouts:            q.stats.timeouts.Load(),
		Stalls:              q.stats.stalls.Load(),
		ConsecutiveTimeouts: int(q.stats.streak.Load()),
		LastProgress:        time.Unix(0, q.stats.last.Load()),
	}
}
