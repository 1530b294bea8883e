package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Result is returned to the caller of SubmitBatch.
type Result struct {
	BatchID string   `json:"batchId"`
	JobIDs  []string `json:"jobIds"`
	Skipped []string `json:"skipped,omitempty"`
}

// Progress aggregates the statuses of a set of batch jobs.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Progress   int `json:"progress"`
}

type Coordinator struct {
	source    MediaSource
	publisher Publisher
	tracker   Tracker
	logger    *slog.Logger
	newID     func() string
}

func NewCoordinator(source MediaSource, publisher Publisher, tracker Tracker, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		source:    source,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// SubmitBatch plans the batch and publishes one task per item that needs work.
// A publish failure stops the batch; tasks already published stay queued.
func (c *Coordinator) SubmitBatch(ctx context.Context, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{BatchID: c.newID(), JobIDs: []string{}}
	tasks, skipped, err := Plan(ctx, c.source, res.BatchID, opts, c.newID)
	if err != nil {
		return Result{}, err
	}
	res.Skipped = skipped

	for _, task := range tasks {
		if err := c.tracker.SetStatus(ctx, task.JobID, StatusPending); err != nil {
			return res, err
		}
		if err := c.publisher.Publish(ctx, task); err != nil {
			if terr := c.tracker.SetStatus(ctx, task.JobID, StatusFailed); terr != nil {
				c.logger.Warn("Failed to mark unpublished task", slog.String("job_id", task.JobID), slog.Any("error", terr))
			}
			return res, fmt.Errorf("publish task for %s: %w", task.MediaID, err)
		}
		res.JobIDs = append(res.JobIDs, task.JobID)
	}

	c.logger.Info("Batch submitted",
		slog.String("batch_id", res.BatchID),
		slog.Int("jobs", len(res.JobIDs)),
		slog.Int("skipped", len(skipped)),
	)
	return res, nil
}

// Progress counts jobs by status. Ids the tracker does not know count as pending.
func (c *Coordinator) Progress(ctx context.Context, jobIDs []string) (Progress, error) {
	statuses, err := c.tracker.Statuses(ctx, jobIDs)
	if err != nil {
		return Progress{}, err
	}
	return Summarize(jobIDs, statuses), nil
}

func Summarize(jobIDs []string, statuses map[string]Status) Progress {
	p := Progress{Total: len(jobIDs)}
	for _, id := range jobIDs {
		switch statuses[id] {
		case StatusProcessing:
			p.Processing++
		case StatusCompleted:
			p.Completed++
		case StatusFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Progress = (p.Completed + p.Failed) * 100 / p.Total
	}
	return p
}
