// Package worker consumes queued batch tasks and runs them through the local
// scheduler, keeping the shared tracker current.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/job"
)

const (
	defaultConcurrency       = 1
	defaultJobTimeout        = 2 * time.Hour
	defaultHeartbeatInterval = 30 * time.Second
)

// Scheduler is the part of the job scheduler the worker drives.
type Scheduler interface {
	Submit(req job.Request) (job.Job, error)
	Await(ctx context.Context, id string) (job.Job, error)
	Delete(id string) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Scheduler         Scheduler
	Tracker           batch.Tracker
	WorkerID          string
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// message is one task plus the way to settle it with its broker.
type message struct {
	task batch.Task
	ack  func() error
	nack func(requeue bool) error
}

// Worker runs batch tasks pulled from the queue
type Worker struct {
	logger            *slog.Logger
	scheduler         Scheduler
	tracker           batch.Tracker
	workerID          string
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration

	jobsChan chan *message
	runCtx   context.Context
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		scheduler:         cfg.Scheduler,
		tracker:           cfg.Tracker,
		workerID:          cfg.WorkerID,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		stopChan:          make(chan struct{}),
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = defaultHeartbeatInterval
	}
	if w.workerID == "" {
		w.workerID = "worker"
	}
	w.jobsChan = make(chan *message, w.concurrency)
	return w
}

// Start spawns the pool. Feed it with ConsumeRabbit or HandleKafka.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)
	w.runCtx = ctx
	w.spawnWorkerPool(ctx)
}

// Stop waits for in-flight tasks to settle.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
