package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mediaflow/internal/app"
	"github.com/cuongbtq/mediaflow/internal/batch"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/notify"
	"github.com/cuongbtq/mediaflow/internal/scheduler"
)

// JobService is the scheduler surface the API exposes.
type JobService interface {
	Submit(req job.Request) (job.Job, error)
	Get(id string) (job.Job, error)
	List() []job.Job
	Delete(id string) error
	Stats() scheduler.Stats
}

type EventSource interface {
	Since(seq int64) []notify.Event
	Subscribe(buffer int) (<-chan notify.Event, func())
}

type BatchService interface {
	SubmitBatch(ctx context.Context, opts batch.Options) (batch.Result, error)
	Progress(ctx context.Context, jobIDs []string) (batch.Progress, error)
}

type MediaReader interface {
	State(ctx context.Context, mediaID string) (*library.MediaState, error)
	Sections(ctx context.Context, mediaID string) ([]library.Section, error)
	Tags(ctx context.Context, mediaID string) ([]library.Tag, error)
	Transcript(ctx context.Context, mediaID string) (*library.Transcript, error)
}

type SystemChecker interface {
	Check(ctx context.Context) app.SystemStatus
}

// Dependencies holds all dependencies needed by handlers. Batches, Media and
// System may be nil; their routes are then not registered.
type Dependencies struct {
	Logger  *slog.Logger
	Jobs    JobService
	Events  EventSource
	Batches BatchService
	Media   MediaReader
	System  SystemChecker
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
	events EventSource
}

func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, jobs: deps.Jobs, events: deps.Events}
}

type BatchHandler struct {
	logger  *slog.Logger
	batches BatchService
}

func NewBatchHandler(deps *Dependencies) *BatchHandler {
	return &BatchHandler{logger: deps.Logger, batches: deps.Batches}
}

type MediaHandler struct {
	logger *slog.Logger
	media  MediaReader
}

func NewMediaHandler(deps *Dependencies) *MediaHandler {
	return &MediaHandler{logger: deps.Logger, media: deps.Media}
}
