package worker

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/rarydzu/monoio/config"
	"github.com/rarydzu/monoio/engine/local"
	"github.com/rarydzu/monoio/eventqueue"
	"github.com/rarydzu/monoio/kvstore"
	statsrv "github.com/rarydzu/monoio/monoserver/stat"
	"github.com/rarydzu/monoio/objclient"
	"github.com/rarydzu/monoio/processor"
	"github.com/rarydzu/monoio/registry"
	"go.uber.org/zap"
)

type Worker struct {
	active bool
	sync.RWMutex
	Processor *processor.Processor
	Registry  *registry.Registry
	Client    *objclient.Client
	StatAddr  net.Addr
	log       *zap.SugaredLogger
	cfg       *config.Config
	store     kvstore.Store
	engine    *local.Engine
	stat      *statsrv.Server

	// client goroutines started by Go, quiesced before queues are destroyed
	clients   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	quiescing bool
}

// OpenStore opens the object store backend named by cfg.
func OpenStore(cfg *config.Config, log *zap.SugaredLogger) (kvstore.Store, error) {
	switch cfg.Backend {
	case config.BackendLevelDB:
		return kvstore.OpenLevelDB(filepath.Join(cfg.Path, "leveldb"))
	case config.BackendBadger:
		return kvstore.OpenBadger(filepath.Join(cfg.Path, "badger"), log)
	case config.BackendNutsDB:
		return kvstore.OpenNutsDB(filepath.Join(cfg.Path, "nutsdb"))
	case config.BackendS3:
		return kvstore.OpenS3(cfg.S3Config())
	case config.BackendMemory:
		return kvstore.NewMemLevelDB()
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func New(cfg *config.Config, log *zap.SugaredLogger) (*Worker, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	w := &Worker{
		Processor: nil,
		log:       log,
		cfg:       &config.Config{},
	}
	if err := copier.CopyWithOption(w.cfg, cfg, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	if err := w.cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(w.cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", w.cfg.Backend, err)
	}
	w.store = store
	eng, err := local.New(kvstore.NewKVStore(store), w.cfg.EngineConfig(), log)
	if err != nil {
		store.Close()
		return nil, err
	}
	w.engine = eng
	w.Registry = registry.New(func(owner string) (*eventqueue.Queue, error) {
		return eventqueue.New(eng, w.cfg.QueueConfig(owner), eventqueue.WithLogger(log))
	}, log)
	client, err := objclient.New(eng, w.Registry, w.cfg.ClientConfig(), log)
	if err != nil {
		eng.Close()
		store.Close()
		return nil, err
	}
	w.Client = client
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

// Go runs fn with the worker's client on its own goroutine. ctx is canceled
// when shutdown starts and shutdown waits for fn to return before it tears
// down the event queues.
func (w *Worker) Go(name string, fn func(ctx context.Context, c *objclient.Client) error) error {
	w.Lock()
	defer w.Unlock()
	if w.quiescing {
		return fmt.Errorf("worker is shutting down, %s not started", name)
	}
	w.clients.Add(1)
	go func() {
		defer w.clients.Done()
		if err := fn(w.ctx, w.Client); err != nil {
			w.log.Errorf("%s: %v", name, err)
		}
	}()
	return nil
}

func (w *Worker) quiesce() {
	w.Lock()
	w.quiescing = true
	w.Unlock()
	w.cancel()
	w.clients.Wait()
}

func (w *Worker) Start() error {
	w.Lock()
	defer w.Unlock()
	if w.active {
		return fmt.Errorf("Worker already active")
	}
	w.active = true
	w.Processor = processor.New(w.cfg.ShutdownTimeout, w.log)
	if w.cfg.StatAddress != "" {
		w.stat = statsrv.New(w.Registry, w.log)
		addr, err := w.stat.Serve(w.cfg.StatAddress)
		if err != nil {
			return err
		}
		w.StatAddr = addr
	}
	steps := []struct {
		name string
		call func() error
	}{
		{"event queues", w.destroyQueues},
		{"stat server", w.stopStat},
		{"engine", w.engine.Close},
		{"store", w.store.Close},
	}
	for _, s := range steps {
		if err := w.Processor.Register(processor.Shutdown, s.name, s.call); err != nil {
			return err
		}
	}
	return w.Processor.Run()
}

// destroyQueues runs once no client goroutine drives a queue anymore.
func (w *Worker) destroyQueues() error {
	w.quiesce()
	n := w.Registry.Len()
	if destroyed := w.Registry.DestroyAll(); destroyed != n {
		return fmt.Errorf("%d of %d event queues failed to destroy", n-destroyed, n)
	}
	return nil
}

func (w *Worker) stopStat() error {
	if w.stat == nil {
		return nil
	}
	return w.stat.Stop()
}

// Stop starts the shutdown sequence.
func (w *Worker) Stop() {
	w.RLock()
	defer w.RUnlock()
	if w.Processor != nil {
		w.Processor.Stop()
	}
}

func (w *Worker) Wait() {
	w.Processor.Wait()
}
