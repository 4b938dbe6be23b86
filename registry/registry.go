// Package registry keeps one event queue per worker.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rarydzu/monoio/eventqueue"
	"go.uber.org/zap"
)

// Factory creates the queue of a worker on first use.
type Factory func(owner string) (*eventqueue.Queue, error)

// Registry maps worker ids to their queues. The map is safe for concurrent
// use; each queue stays owned by the worker that created it.
type Registry struct {
	sync.RWMutex
	queues  map[string]*eventqueue.Queue
	factory Factory
	log     *zap.SugaredLogger
}

func New(factory Factory, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		queues:  map[string]*eventqueue.Queue{},
		factory: factory,
		log:     log,
	}
}

// GetOrCreate returns the queue of owner, creating it on first call.
func (r *Registry) GetOrCreate(owner string) (*eventqueue.Queue, error) {
	r.RLock()
	q, ok := r.queues[owner]
	r.RUnlock()
	if ok {
		return q, nil
	}
	r.Lock()
	defer r.Unlock()
	if q, ok := r.queues[owner]; ok {
		return q, nil
	}
	q, err := r.factory(owner)
	if err != nil {
		return nil, fmt.Errorf("create queue for %q: %w", owner, err)
	}
	r.queues[owner] = q
	return q, nil
}

func (r *Registry) Get(owner string) (*eventqueue.Queue, bool) {
	r.RLock()
	defer r.RUnlock()
	q, ok := r.queues[owner]
	return q, ok
}

// Destroy removes and destroys the queue of owner.
func (r *Registry) Destroy(owner string) error {
	r.Lock()
	q, ok := r.queues[owner]
	delete(r.queues, owner)
	r.Unlock()
	if !ok {
		return nil
	}
	return q.Destroy()
}

// DestroyAll destroys every queue. Failures are logged and do not stop the
// sweep. It returns the number of queues destroyed cleanly.
func (r *Registry) DestroyAll() int {
	r.Lock()
	queues := r.queues
	r.queues = map[string]*eventqueue.Queue{}
	r.Unlock()
	destroyed := 0
	for owner, q := range queues {
		if err := q.Destroy(); err != nil {
			r.log.Warnf("destroy queue %s: failed (%s)", owner, err.Error())
			continue
		}
		destroyed++
	}
	r.log.Infof("destroyed %d of %d event queues", destroyed, len(queues))
	return destroyed
}

func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.queues)
}

// Stats returns a snapshot of every queue ordered by owner.
func (r *Registry) Stats() []eventqueue.Stats {
	r.RLock()
	stats := make([]eventqueue.Stats, 0, len(r.queues))
	for _, q := range r.queues {
		stats = append(stats, q.Stats())
	}
	r.RUnlock()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Owner < stats[j].Owner })
	return stats
}
