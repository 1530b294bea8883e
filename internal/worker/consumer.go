package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/scheduler"
)

// ConsumeRabbit decodes deliveries and dispatches them to the pool until ctx
// ends or the channel closes.
func (w *Worker) ConsumeRabbit(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			task, err := batch.DecodeTask(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed task",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead-letter queue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			d := delivery
			msg := &message{
				task: task,
				ack:  func() error { return d.Ack(false) },
				nack: func(requeue bool) error { return d.Nack(false, requeue) },
			}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Task dispatched to worker pool",
					slog.String("job_id", task.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}

// HandleKafka runs one task synchronously. It matches kafka.MessageHandler; the
// consumer commits the offset whatever the outcome, so failures surface through
// the tracker only.
func (w *Worker) HandleKafka(ctx context.Context, _ string, value []byte) error {
	task, err := batch.DecodeTask(value)
	if err != nil {
		return fmt.Errorf("skip malformed task: %w", err)
	}
	return w.processTask(ctx, task)
}

// Publish runs a task in this process instead of a broker, so the API service
// can serve batches on its own. It satisfies batch.Publisher. Start must have
// been called.
func (w *Worker) Publish(_ context.Context, task batch.Task) error {
	select {
	case <-w.stopChan:
		return scheduler.ErrClosed
	default:
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.processTask(w.runCtx, task); err != nil {
			w.logger.Warn("Batch task failed", slog.String("job_id", task.JobID), slog.Any("error", err))
		}
	}()
	return nil
}
