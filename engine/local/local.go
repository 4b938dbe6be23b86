// Package local is an in-process engine. It executes descriptors against a
// kvstore with a pool of workers and reports asynchronous completions per
// event queue.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	equeue "github.com/eapache/queue"
	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
	"github.com/rarydzu/monoio/hash"
	"github.com/rarydzu/monoio/kvstore"
	"github.com/rarydzu/monoio/utils"
	"github.com/ztrue/tracerr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("engine closed")

type Config struct {
	Workers     int
	LockStripes uint64
}

func DefaultConfig() Config {
	return Config{Workers: 8, LockStripes: 1024}
}

type request struct {
	req     *desc.Request
	aborted bool
	running bool
}

type queue struct {
	capacity  int
	inflight  map[uint16]*request
	done      *equeue.Queue
	reported  map[uint16]bool
	notify    chan struct{}
	running   sync.WaitGroup
	destroyed bool
}

type job struct {
	q  *queue
	id uint16
	r  *request
}

type Engine struct {
	store  *kvstore.KVStore
	locks  *hash.Hash
	log    *zap.SugaredLogger
	jobs   chan job
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	// synchronous submissions executing on the caller's goroutine
	inline sync.WaitGroup

	mu     sync.Mutex
	next   engine.Handle
	queues map[engine.Handle]*queue
	closed bool
}

var _ engine.Engine = (*Engine)(nil)

// New starts cfg.Workers executors over store.
func New(store *kvstore.KVStore, cfg Config, log *zap.SugaredLogger) (*Engine, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("engine workers must be positive, got %d", cfg.Workers)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	e := &Engine{
		store:  store,
		locks:  hash.New(cfg.LockStripes),
		log:    log,
		jobs:   make(chan job, cfg.Workers*4),
		g:      g,
		ctx:    ctx,
		cancel: cancel,
		queues: map[engine.Handle]*queue{},
	}
	for i := 0; i < cfg.Workers; i++ {
		g.Go(e.worker)
	}
	return e, nil
}

func (e *Engine) worker() error {
	for {
		select {
		case j := <-e.jobs:
			e.run(j)
		case <-e.ctx.Done():
			return nil
		}
	}
}

func (e *Engine) CreateEventQueue(capacity int) (engine.Handle, error) {
	if capacity <= 0 {
		return 0, tracerr.Wrap(engine.NewStatusError("create queue", engine.StatusInvalid))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	e.next++
	e.queues[e.next] = &queue{
		capacity: capacity,
		inflight: map[uint16]*request{},
		done:     equeue.New(),
		reported: map[uint16]bool{},
		notify:   make(chan struct{}, 1),
	}
	return e.next, nil
}

// DestroyEventQueue cancels every pending request of h and waits for the
// running ones.
func (e *Engine) DestroyEventQueue(h engine.Handle) error {
	e.mu.Lock()
	q, ok := e.queues[h]
	if !ok {
		e.mu.Unlock()
		return tracerr.Wrap(engine.NewStatusError("destroy", engine.StatusNonexist))
	}
	for _, r := range q.inflight {
		r.aborted = true
	}
	q.destroyed = true
	delete(e.queues, h)
	e.mu.Unlock()
	q.running.Wait()
	return nil
}

func (e *Engine) Submit(addr uintptr) error {
	buf, err := desc.ViewDescriptor(addr)
	if err != nil {
		return tracerr.Errorf("submit: %w", err)
	}
	req, err := desc.Decode(buf)
	if err != nil {
		return tracerr.Errorf("submit: %w", err)
	}
	if !req.Async() {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		e.inline.Add(1)
		e.mu.Unlock()
		defer e.inline.Done()
		status, sizes := e.execute(req)
		if err := req.SetResult(int32(status), sizes); err != nil {
			return tracerr.Wrap(err)
		}
		if status != engine.StatusOK {
			return tracerr.Wrap(engine.NewStatusError("submit", status))
		}
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	q, ok := e.queues[engine.Handle(req.Handle)]
	if !ok {
		e.mu.Unlock()
		return tracerr.Wrap(engine.NewStatusError("submit", engine.StatusNonexist))
	}
	if int(req.EventID) >= q.capacity {
		e.mu.Unlock()
		return tracerr.Wrap(engine.NewStatusError("submit", engine.StatusInvalid))
	}
	if _, busy := q.inflight[req.EventID]; busy || q.reported[req.EventID] {
		e.mu.Unlock()
		return tracerr.Wrap(engine.NewStatusError("submit", engine.StatusBusy))
	}
	r := &request{req: req}
	q.inflight[req.EventID] = r
	q.running.Add(1)
	e.mu.Unlock()

	select {
	case e.jobs <- job{q: q, id: req.EventID, r: r}:
		return nil
	case <-e.ctx.Done():
		e.mu.Lock()
		delete(q.inflight, req.EventID)
		e.mu.Unlock()
		q.running.Done()
		return ErrClosed
	}
}

func (e *Engine) run(j job) {
	defer j.q.running.Done()
	e.mu.Lock()
	skip := j.r.aborted
	j.r.running = !skip
	e.mu.Unlock()

	var (
		status engine.Status
		sizes  []uint32
	)
	if !skip {
		status, sizes = e.execute(j.r.req)
		if err := j.r.req.SetResult(int32(status), sizes); err != nil {
			e.log.Errorf("event %d: write result: %v", j.id, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	j.r.running = false
	delete(j.q.inflight, j.id)
	if j.q.destroyed {
		return
	}
	j.q.reported[j.id] = true
	j.q.done.Add(j.id)
	select {
	case j.q.notify <- struct{}{}:
	default:
	}
}

// execute serves one descriptor under the stripe locks of its keys.
func (e *Engine) execute(req *desc.Request) (engine.Status, []uint32) {
	keys := make([][]byte, len(req.Entries))
	for i, en := range req.Entries {
		if len(en.Akey) == 0 || en.Length == 0 || en.Addr == 0 {
			return engine.StatusInvalid, nil
		}
		keys[i] = utils.ObjectKey(req.Dkey, en.Akey)
	}
	unlock := e.locks.LockKeys(keys, req.Kind == desc.KindFetch)
	defer unlock()

	sizes := make([]uint32, len(req.Entries))
	for i, en := range req.Entries {
		switch req.Kind {
		case desc.KindUpdate:
			if err := e.store.WriteAt(keys[i], en.Offset, en.Data()); err != nil {
				e.log.Errorf("update %q: %v", keys[i], err)
				return engine.StatusIO, nil
			}
			sizes[i] = en.Length
		case desc.KindFetch:
			n, err := e.store.ReadAt(keys[i], en.Offset, en.Data())
			if err != nil {
				e.log.Errorf("fetch %q: %v", keys[i], err)
				return engine.StatusIO, nil
			}
			sizes[i] = uint32(n)
		}
	}
	return engine.StatusOK, sizes
}

// AbortEvent cancels a request that has not started. A running request
// answers StatusBusy; a finished one is left to be polled.
func (e *Engine) AbortEvent(h engine.Handle, id uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[h]
	if !ok {
		return tracerr.Wrap(engine.NewStatusError("abort", engine.StatusNonexist))
	}
	if q.reported[id] {
		return nil
	}
	r, ok := q.inflight[id]
	if !ok {
		return tracerr.Wrap(engine.NewStatusError("abort", engine.StatusNonexist))
	}
	if r.running {
		return tracerr.Wrap(engine.NewStatusError("abort", engine.StatusBusy))
	}
	r.aborted = true
	return nil
}

func (e *Engine) take(q *queue, capacity int) []uint16 {
	n := q.done.Length()
	if n > capacity {
		n = capacity
	}
	ids := make([]uint16, n)
	for i := range ids {
		ids[i] = q.done.Remove().(uint16)
		delete(q.reported, ids[i])
	}
	return ids
}

func (e *Engine) PollCompleted(h engine.Handle, scratch uintptr, capacity int, timeout time.Duration) error {
	e.mu.Lock()
	q, ok := e.queues[h]
	if !ok {
		e.mu.Unlock()
		return tracerr.Wrap(engine.NewStatusError("poll", engine.StatusNonexist))
	}
	ids := e.take(q, capacity)
	e.mu.Unlock()

	if len(ids) == 0 && timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
	wait:
		for {
			select {
			case <-q.notify:
			case <-timer.C:
				break wait
			}
			e.mu.Lock()
			ids = e.take(q, capacity)
			e.mu.Unlock()
			if len(ids) > 0 {
				break
			}
		}
		if len(ids) == 0 {
			e.mu.Lock()
			ids = e.take(q, capacity)
			e.mu.Unlock()
		}
	}
	desc.EncodeCompleted(desc.View(scratch, desc.CompletedSize(capacity)), ids)
	return nil
}

// Close stops the workers. Queues should be destroyed first.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	left := len(e.queues)
	e.mu.Unlock()
	if left > 0 {
		e.log.Warnf("closing engine with %d live event queues", left)
	}
	e.cancel()
	err := e.g.Wait()
	e.inline.Wait()
	for {
		select {
		case j := <-e.jobs:
			e.mu.Lock()
			j.r.aborted = true
			e.mu.Unlock()
			e.run(j)
		default:
			return err
		}
	}
}
