// Package worker runs background jobs from an in-memory queue. There is no
// durable job store: a batch lives and dies with the process, so the queue
// is a buffered channel rather than a polled table.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work.
type Job struct {
	Type    string
	Payload []byte
}

// Worker manages background job processing with concurrent workers.
type Worker struct {
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	queue  chan Job
	wg     sync.WaitGroup
	stopCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		queue:    make(chan Job, config.QueueSize),
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("Registered job handler", "job_type", jobType)
}

// Enqueue submits a job for background execution. It fails fast when the
// queue is full rather than blocking an HTTP request.
func (w *Worker) Enqueue(job Job) error {
	if _, ok := w.handlers[job.Type]; !ok {
		return fmt.Errorf("no handler registered for job type %q", job.Type)
	}
	select {
	case w.queue <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full (size %d)", w.config.QueueSize)
	}
}

// Start begins processing jobs with the configured number of concurrent workers.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		for i := 0; i < w.config.Concurrency; i++ {
			w.wg.Add(1)
			go w.runWorker(ctx, i+1)
		}
		w.logger.Info("Worker started", "concurrency", w.config.Concurrency)
	})
}

// Stop signals all workers to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopCh)

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			w.logger.Info("Worker stopped gracefully")
		case <-time.After(w.config.ShutdownTimeout):
			w.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
		}
	})
}

// runWorker is the main loop for a worker goroutine.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.executeJob(ctx, job, logger)
		}
	}
}

// executeJob runs a single job under the configured timeout.
func (w *Worker) executeJob(ctx context.Context, job Job, logger *slog.Logger) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		logger.Error("No handler for job", "job_type", job.Type)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := handler.Handle(jobCtx, job.Payload)
	duration := time.Since(start)

	switch {
	case err == nil:
		logger.Info("Job completed", "job_type", job.Type, "duration", duration)
	case IsPermanent(err):
		logger.Error("Job failed permanently", "job_type", job.Type, "error", err)
	default:
		// No durable queue means no re-delivery; a transient failure is
		// logged and dropped. Batches handle their own per-item retries.
		logger.Error("Job failed", "job_type", job.Type, "error", err)
	}
}
