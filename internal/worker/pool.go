package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mediaflow/internal/scheduler"
)

func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
	w.logger.Info("Worker pool spawned", slog.Int("worker_count", w.concurrency))
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()
	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping", slog.String("worker_name", workerName))
			return
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled", slog.String("worker_name", workerName))
			return
		case msg := <-w.jobsChan:
			w.settle(workerName, msg, w.processTask(ctx, msg.task))
		}
	}
}

func (w *Worker) settle(workerName string, msg *message, err error) {
	log := w.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.task.JobID),
	)

	if err == nil {
		if ackErr := msg.ack(); ackErr != nil {
			log.Error("Failed to ACK message", slog.Any("error", ackErr))
		}
		return
	}

	requeue := shouldRequeue(err)
	if nackErr := msg.nack(requeue); nackErr != nil {
		log.Error("Failed to NACK message", slog.Any("error", nackErr))
		return
	}
	log.Info("Message NACKed", slog.Bool("requeue", requeue), slog.Any("error", err))
}

// shouldRequeue is true only when this process could not take the task at all.
// A job that ran and failed is final; its status is in the tracker.
func shouldRequeue(err error) bool {
	return errors.Is(err, scheduler.ErrClosed)
}
