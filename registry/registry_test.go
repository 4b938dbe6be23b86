package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rarydzu/monoio/engine/enginetest"
	"github.com/rarydzu/monoio/eventqueue"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func queueFactory(eng *enginetest.Engine, created *int32) Factory {
	return func(owner string) (*eventqueue.Queue, error) {
		atomic.AddInt32(created, 1)
		return eventqueue.New(eng, eventqueue.Config{Owner: owner, Capacity: 4, Policy: eventqueue.DefaultPolicy()})
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	var created int32
	r := New(queueFactory(enginetest.New(), &created), nil)
	defer r.DestroyAll()

	const workers = 16
	queues := make([][]*eventqueue.Queue, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := fmt.Sprintf("worker-%d", w)
			for i := 0; i < 50; i++ {
				q, err := r.GetOrCreate(owner)
				if err != nil {
					t.Error(err)
					return
				}
				queues[w] = append(queues[w], q)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, int32(workers), atomic.LoadInt32(&created))
	assert.Equal(t, workers, r.Len())
	for w, qs := range queues {
		for _, q := range qs {
			assert.Same(t, qs[0], q)
		}
		assert.Equal(t, fmt.Sprintf("worker-%d", w), qs[0].Owner())
	}
}

func TestDestroyAllToleratesFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	good, bad := enginetest.New(), enginetest.New()
	bad.DestroyErr = errors.New("queue stuck")
	r := New(func(owner string) (*eventqueue.Queue, error) {
		eng := good
		if owner == "stuck" {
			eng = bad
		}
		return eventqueue.New(eng, eventqueue.Config{Owner: owner, Capacity: 1, Policy: eventqueue.DefaultPolicy()})
	}, zap.New(core).Sugar())
	for _, owner := range []string{"a", "stuck", "b"} {
		_, err := r.GetOrCreate(owner)
		assert.NoError(t, err)
	}

	assert.Equal(t, 2, r.DestroyAll())
	assert.Equal(t, 0, r.Len())
	assert.Len(t, good.Destroyed, 2)
	assert.Equal(t, 1, logs.Len())
	_, ok := r.Get("a")
	assert.False(t, ok)
}
