package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/scheduler"
)

// ErrJobFailed wraps the error a scheduled job finished with.
var ErrJobFailed = errors.New("batch job failed")

// processTask submits the task to the scheduler and waits for the outcome,
// keeping the tracker in step.
func (w *Worker) processTask(ctx context.Context, task batch.Task) error {
	log := w.logger.With(
		slog.String("job_id", task.JobID),
		slog.String("media_id", task.MediaID),
		slog.String("action", string(task.Action)),
	)
	log.Info("Processing batch task")

	j, err := w.scheduler.Submit(task.Request)
	if err != nil {
		if errors.Is(err, scheduler.ErrClosed) {
			return err
		}
		w.setStatus(ctx, task.JobID, batch.StatusFailed)
		return fmt.Errorf("submit task: %w", err)
	}
	w.setStatus(ctx, task.JobID, batch.StatusProcessing)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	stopHeartbeat := w.startHeartbeat(jobCtx, task.JobID)
	done, err := w.scheduler.Await(jobCtx, j.ID)
	stopHeartbeat()
	if err != nil {
		if delErr := w.scheduler.Delete(j.ID); delErr != nil && !errors.Is(delErr, job.ErrJobNotFound) {
			log.Warn("Failed to abandon job", slog.Any("error", delErr))
		}
		w.setStatus(context.WithoutCancel(ctx), task.JobID, batch.StatusFailed)
		return fmt.Errorf("await job %s: %w", j.ID, err)
	}

	if done.Status == job.StatusFailed {
		w.setStatus(ctx, task.JobID, batch.StatusFailed)
		return fmt.Errorf("%w: %s", ErrJobFailed, done.Error)
	}

	w.setStatus(ctx, task.JobID, batch.StatusCompleted)
	log.Info("Batch task completed", slog.Int64("duration_ms", done.DurationMs))
	return nil
}

func (w *Worker) setStatus(ctx context.Context, jobID string, status batch.Status) {
	if err := w.tracker.SetStatus(ctx, jobID, status); err != nil {
		w.logger.Warn("Failed to update batch status",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}

// startHeartbeat rewrites the processing status so its expiry never lapses
// during a long job. The returned func stops it and waits for the last write.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(w.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.setStatus(ctx, jobID, batch.StatusProcessing)
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}
