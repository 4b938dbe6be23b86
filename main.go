package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/rarydzu/monoio/bench"
	"github.com/rarydzu/monoio/config"
	"github.com/rarydzu/monoio/objclient"
	"github.com/rarydzu/monoio/worker"
	"go.uber.org/zap"
)

var defaults = config.Default()

var fPath = flag.String("path", defaults.Path, "Path to the object store.")
var fBackend = flag.String("backend", defaults.Backend, "Object store backend: leveldb, badger, nutsdb, s3 or memory.")
var fS3Bucket = flag.String("s3_bucket", "", "S3 bucket of the s3 backend.")
var fS3Prefix = flag.String("s3_prefix", "", "Key prefix inside the S3 bucket.")
var fS3Region = flag.String("s3_region", defaults.S3Region, "S3 region.")
var fS3Endpoint = flag.String("s3_endpoint", "", "S3 endpoint override, e.g. a local minio.")
var fQueueCapacity = flag.Int("queue_capacity", defaults.QueueCapacity, "Events per worker queue.")
var fEngineWorkers = flag.Int("engine_workers", defaults.EngineWorkers, "Concurrent request executors.")
var fRecordSize = flag.Int("record_size", defaults.RecordSize, "Array record size in bytes.")
var fWarnTimeouts = flag.Int("warn_timeouts", defaults.Policy.WarnTimeouts, "Consecutive empty polls before a progress warning.")
var fErrorTimeouts = flag.Int("error_timeouts", defaults.Policy.ErrorTimeouts, "Consecutive empty polls before a queue counts as stalled.")
var fNoProgress = flag.Duration("no_progress", defaults.Policy.NoProgress, "Time without completions before a queue counts as stalled.")
var fMaxBackoff = flag.Duration("max_backoff", defaults.Policy.MaxBackoff, "Longest poll wait while a queue is full.")
var fIdleWait = flag.Duration("idle_wait", defaults.Policy.IdleWait, "Poll wait while waiting for completions.")
var fStatServerAddress = flag.String("statAddress", "", "Listen address of the stat server.")
var fShutdownTimeout = flag.Duration("shutdown_timeout", defaults.ShutdownTimeout, "Force exit after this long in shutdown.")
var fDev = flag.Bool("dev", false, "Run in development mode")
var fBench = flag.Int("bench", 0, "Run N benchmark workers, verify the data and exit.")
var fBenchOps = flag.Int("bench_ops", 1000, "Akeys written and read back per benchmark worker.")
var fBenchSize = flag.Int("bench_size", 4096, "Bytes per akey in the benchmark.")
var fBenchBatch = flag.Int("bench_batch", 16, "Entries per reusable fetch descriptor in the benchmark.")

func main() {
	flag.Parse()
	logger, err := zap.NewProduction()
	if *fDev {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	sugarlog := logger.Sugar()
	defer sugarlog.Sync()

	cfg := &config.Config{
		Path:            *fPath,
		Backend:         *fBackend,
		S3Bucket:        *fS3Bucket,
		S3Prefix:        *fS3Prefix,
		S3Region:        *fS3Region,
		S3Endpoint:      *fS3Endpoint,
		QueueCapacity:   *fQueueCapacity,
		EngineWorkers:   *fEngineWorkers,
		LockStripes:     defaults.LockStripes,
		RecordSize:      *fRecordSize,
		Policy:          defaults.Policy,
		AcquireTimeout:  defaults.AcquireTimeout,
		WaitTimeout:     defaults.WaitTimeout,
		StatAddress:     *fStatServerAddress,
		ShutdownTimeout: *fShutdownTimeout,
		DebugMode:       *fDev,
	}
	cfg.Policy.WarnTimeouts = *fWarnTimeouts
	cfg.Policy.ErrorTimeouts = *fErrorTimeouts
	cfg.Policy.NoProgress = *fNoProgress
	cfg.Policy.MaxBackoff = *fMaxBackoff
	cfg.Policy.IdleWait = *fIdleWait

	w, err := worker.New(cfg, sugarlog)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	if err := w.Start(); err != nil {
		log.Fatalf("Start: %v", err)
	}
	if *fBench > 0 {
		err := w.Go("bench", func(ctx context.Context, c *objclient.Client) error {
			defer w.Stop()
			start := time.Now()
			_, err := bench.Run(ctx, c, bench.Config{
				Workers: *fBench,
				Ops:     *fBenchOps,
				Size:    *fBenchSize,
				Batch:   *fBenchBatch,
			}, sugarlog)
			if err != nil {
				return fmt.Errorf("failed after %s: %w", time.Since(start), err)
			}
			return nil
		})
		if err != nil {
			log.Fatalf("bench: %v", err)
		}
	}
	w.Wait()
}
