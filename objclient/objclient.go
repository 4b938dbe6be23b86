// Package objclient reads and writes object arrays. Synchronous calls go
// straight to the engine; asynchronous ones go through the event queue of
// the calling worker. A worker id must only be used by one goroutine at a
// time.
package objclient

import (
	"fmt"
	"time"

	"github.com/rarydzu/monoio/desc"
	"github.com/rarydzu/monoio/engine"
	"github.com/rarydzu/monoio/operation"
	"github.com/rarydzu/monoio/registry"
	"go.uber.org/zap"
)

type Config struct {
	RecordSize     int
	AcquireTimeout time.Duration
	WaitTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RecordSize:     1,
		AcquireTimeout: 5 * time.Second,
		WaitTimeout:    30 * time.Second,
	}
}

type Client struct {
	eng engine.Engine
	reg *registry.Registry
	cfg Config
	log *zap.SugaredLogger
}

func New(eng engine.Engine, reg *registry.Registry, cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.RecordSize <= 0 {
		return nil, fmt.Errorf("record size must be positive, got %d", cfg.RecordSize)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{eng: eng, reg: reg, cfg: cfg, log: log}, nil
}

func (c *Client) RecordSize() int { return c.cfg.RecordSize }

// Exec runs a synchronous operation to completion and parses its result.
func (c *Client) Exec(op operation.Operation) error {
	if op.Async() {
		return fmt.Errorf("%w: exec of asynchronous operation", operation.ErrIllegalState)
	}
	if err := op.Encode(); err != nil {
		return err
	}
	if err := c.eng.Submit(op.Addr()); err != nil {
		return fmt.Errorf("%s %q: %w", op.Kind(), op.Dkey(), err)
	}
	if err := op.Ready(); err != nil {
		return err
	}
	return op.Err()
}

// Update writes data into the akey array at offset.
func (c *Client) Update(dkey, akey string, offset uint64, data []byte) error {
	op, err := operation.NewDataDesc(dkey, desc.KindUpdate, c.cfg.RecordSize)
	if err != nil {
		return err
	}
	defer c.release(op)
	if _, err := op.AddUpdate(akey, offset, data); err != nil {
		return err
	}
	return c.Exec(op)
}

// Fetch reads up to size bytes of the akey array from offset. It returns
// fewer bytes when the array is shorter.
func (c *Client) Fetch(dkey, akey string, offset uint64, size int) ([]byte, error) {
	op, err := operation.NewDataDesc(dkey, desc.KindFetch, c.cfg.RecordSize)
	if err != nil {
		return nil, err
	}
	defer c.release(op)
	en, err := op.AddFetch(akey, offset, size)
	if err != nil {
		return nil, err
	}
	if err := c.Exec(op); err != nil {
		return nil, err
	}
	return append([]byte(nil), en.Data()...), nil
}

// SubmitAsync sends op through the queue of worker, waiting for a free event
// when the queue is full. Completions polled meanwhile are appended to
// completed. On a submit failure op stays bound to its event and releasing
// it gives the event back.
func (c *Client) SubmitAsync(worker string, op operation.Operation, completed *[]operation.Operation) error {
	q, err := c.reg.GetOrCreate(worker)
	if err != nil {
		return err
	}
	ev, err := q.AcquireEventBlocking(c.cfg.AcquireTimeout, completed)
	if err != nil {
		return err
	}
	if err := ev.Attach(op); err != nil {
		if rerr := q.ReturnEvent(ev); rerr != nil {
			c.log.Warnf("return event %d of %s: %v", ev.ID(), worker, rerr)
		}
		return err
	}
	return q.Submit(ev)
}

// UpdateAsync submits a one-shot update. The returned operation is owned by
// the caller and must be released after it completes.
func (c *Client) UpdateAsync(worker, dkey, akey string, offset uint64, data []byte, completed *[]operation.Operation) (*operation.SingleDesc, error) {
	op, err := operation.NewSingleUpdate(dkey, akey, offset, data, c.cfg.RecordSize)
	if err != nil {
		return nil, err
	}
	if err := c.SubmitAsync(worker, op, completed); err != nil {
		c.release(op)
		return nil, err
	}
	return op, nil
}

// FetchAsync submits a one-shot fetch of up to size bytes.
func (c *Client) FetchAsync(worker, dkey, akey string, offset uint64, size int, completed *[]operation.Operation) (*operation.SingleDesc, error) {
	op, err := operation.NewSingleFetch(dkey, akey, offset, size, c.cfg.RecordSize)
	if err != nil {
		return nil, err
	}
	if err := c.SubmitAsync(worker, op, completed); err != nil {
		c.release(op)
		return nil, err
	}
	return op, nil
}

func (c *Client) release(op operation.Operation) {
	if err := op.Release(); err != nil {
		c.log.Warnf("release %s %q: %v", op.Kind(), op.Dkey(), err)
	}
}

// Wait polls the queue of worker until nothing is in flight.
func (c *Client) Wait(worker string, completed *[]operation.Operation) error {
	q, ok := c.reg.Get(worker)
	if !ok {
		return nil
	}
	return q.WaitForCompletion(c.cfg.WaitTimeout, completed)
}

// Close destroys the queue of worker.
func (c *Client) Close(worker string) error {
	return c.reg.Destroy(worker)
}
