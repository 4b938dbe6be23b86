// Package bench drives concurrent workers through asynchronous updates and
// reusable fetch descriptors and verifies what comes back.
package bench

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rarydzu/monoio/objclient"
	"github.com/rarydzu/monoio/operation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Workers int
	// Ops akeys written and read back per worker.
	Ops int
	// Size bytes per akey.
	Size int
	// Batch entries per reusable fetch descriptor.
	Batch int
}

type Result struct {
	Updates int64
	Fetches int64
	Bytes   int64
	Elapsed time.Duration
}

func pattern(worker, op, size int) []byte {
	return bytes.Repeat([]byte{byte(worker*31 + op)}, size)
}

func akey(i int) string { return fmt.Sprintf("akey-%06d", i) }

// Run executes the benchmark and returns totals over all workers. Workers
// stop between submissions once ctx is done.
func Run(ctx context.Context, c *objclient.Client, cfg Config, log *zap.SugaredLogger) (Result, error) {
	if cfg.Workers <= 0 || cfg.Ops <= 0 || cfg.Size <= 0 || cfg.Batch <= 0 {
		return Result{}, fmt.Errorf("bench: workers, ops, size and batch must be positive")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var res Result
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		w := w
		g.Go(func() error {
			worker := fmt.Sprintf("bench-%d", w)
			defer c.Close(worker)
			if err := update(ctx, c, worker, w, cfg, &res); err != nil {
				return fmt.Errorf("%s update: %w", worker, err)
			}
			if err := fetch(ctx, c, worker, w, cfg, &res); err != nil {
				return fmt.Errorf("%s fetch: %w", worker, err)
			}
			return nil
		})
	}
	err := g.Wait()
	res.Elapsed = time.Since(start)
	log.Infof("bench: %d workers, %d updates, %d fetches, %d bytes in %s",
		cfg.Workers, res.Updates, res.Fetches, res.Bytes, res.Elapsed)
	return res, err
}

func update(ctx context.Context, c *objclient.Client, worker string, w int, cfg Config, res *Result) error {
	var completed []operation.Operation
	ops := make([]*operation.SingleDesc, 0, cfg.Ops)
	defer func() {
		for _, op := range ops {
			op.Release()
		}
	}()
	for i := 0; i < cfg.Ops; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		op, err := c.UpdateAsync(worker, worker, akey(i), 0, pattern(w, i, cfg.Size), &completed)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	if err := c.Wait(worker, &completed); err != nil {
		return err
	}
	for _, op := range completed {
		if err := op.Err(); err != nil {
			return err
		}
	}
	atomic.AddInt64(&res.Updates, int64(len(completed)))
	atomic.AddInt64(&res.Bytes, int64(len(completed)*cfg.Size))
	return nil
}

// fetch reads every akey back through one reusable descriptor.
func fetch(ctx context.Context, c *objclient.Client, worker string, w int, cfg Config, res *Result) error {
	op, err := operation.NewSimpleDesc(operation.SimpleConfig{
		MaxKeyLen:   len(akey(0)),
		Entries:     cfg.Batch,
		EntryBufLen: cfg.Size,
		RecordSize:  c.RecordSize(),
		Async:       true,
	})
	if err != nil {
		return err
	}
	defer op.Release()
	for first := 0; first < cfg.Ops; first += cfg.Batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op.SetDkey(worker); err != nil {
			return err
		}
		n := 0
		for i := first; i < cfg.Ops && n < cfg.Batch; i++ {
			if err := op.Entry(n).SetFetch(akey(i), 0, cfg.Size); err != nil {
				return err
			}
			n++
		}
		if err := c.SubmitAsync(worker, op, nil); err != nil {
			return err
		}
		if err := c.Wait(worker, nil); err != nil {
			return err
		}
		if err := op.Err(); err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			if want := pattern(w, first+j, cfg.Size); !bytes.Equal(op.Entry(j).Data(), want) {
				return fmt.Errorf("%s: got %d bytes that differ from what was written", akey(first+j), op.Entry(j).ActualSize())
			}
		}
		atomic.AddInt64(&res.Fetches, int64(n))
		atomic.AddInt64(&res.Bytes, int64(n*cfg.Size))
		if err := op.Reuse(); err != nil {
			return err
		}
	}
	return nil
}
