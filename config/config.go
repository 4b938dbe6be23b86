package config

import (
	"fmt"
	"time"

	"github.com/rarydzu/monoio/engine/local"
	"github.com/rarydzu/monoio/eventqueue"
	"github.com/rarydzu/monoio/kvstore"
	"github.com/rarydzu/monoio/objclient"
)

const (
	BackendLevelDB = "leveldb"
	BackendBadger  = "badger"
	BackendNutsDB  = "nutsdb"
	BackendS3      = "s3"
	BackendMemory  = "memory"
)

type Config struct {
	// Path to the directory holding the object store.
	Path string
	//Backend object store backend
	Backend string
	//S3 bucket, key prefix, region and optional endpoint of the s3 backend
	S3Bucket   string
	S3Prefix   string
	S3Region   string
	S3Endpoint string
	//QueueCapacity events per worker queue
	QueueCapacity int
	//EngineWorkers concurrent request executors
	EngineWorkers int
	//LockStripes striped key locks of the engine
	LockStripes uint64
	//RecordSize array record size in bytes
	RecordSize int
	//Policy backpressure and stall detection of every queue
	Policy eventqueue.Policy
	//AcquireTimeout max wait for a free event
	AcquireTimeout time.Duration
	//WaitTimeout max wait for in-flight operations
	WaitTimeout time.Duration
	//StatAddress listen address of the stat server, empty disables it
	StatAddress string
	//ShutdownTimeout timeout for shutdown
	ShutdownTimeout time.Duration
	//DebugMode run in debug mode
	DebugMode bool
}

func Default() *Config {
	return &Config{
		Path:            "/tmp/monoio",
		Backend:         BackendLevelDB,
		S3Region:        "us-east-1",
		QueueCapacity:   256,
		EngineWorkers:   8,
		LockStripes:     1024,
		RecordSize:      1,
		Policy:          eventqueue.DefaultPolicy(),
		AcquireTimeout:  5 * time.Second,
		WaitTimeout:     30 * time.Second,
		ShutdownTimeout: 60 * time.Second,
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLevelDB, BackendBadger, BackendNutsDB:
		if c.Path == "" {
			return fmt.Errorf("backend %s needs a path", c.Backend)
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("backend s3 needs a bucket")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.QueueCapacity <= 0 || c.QueueCapacity > eventqueue.MaxCapacity {
		return fmt.Errorf("queue capacity %d out of range 1..%d", c.QueueCapacity, eventqueue.MaxCapacity)
	}
	if c.EngineWorkers <= 0 {
		return fmt.Errorf("engine workers %d must be positive", c.EngineWorkers)
	}
	if c.RecordSize <= 0 {
		return fmt.Errorf("record size %d must be positive", c.RecordSize)
	}
	if c.AcquireTimeout <= 0 || c.WaitTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// QueueConfig is the event queue configuration of worker.
func (c *Config) QueueConfig(worker string) eventqueue.Config {
	return eventqueue.Config{Owner: worker, Capacity: c.QueueCapacity, Policy: c.Policy}
}

func (c *Config) EngineConfig() local.Config {
	return local.Config{Workers: c.EngineWorkers, LockStripes: c.LockStripes}
}

func (c *Config) ClientConfig() objclient.Config {
	return objclient.Config{RecordSize: c.RecordSize, AcquireTimeout: c.AcquireTimeout, WaitTimeout: c.WaitTimeout}
}

func (c *Config) S3Config() kvstore.S3Config {
	return kvstore.S3Config{Bucket: c.S3Bucket, Prefix: c.S3Prefix, Region: c.S3Region, Endpoint: c.S3Endpoint}
}
