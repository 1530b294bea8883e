// Package scheduler decides which job phase runs next under a concurrency budget
// and drives each dispatched chain of phases to completion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/notify"
	"github.com/cuongbtq/mediaflow/internal/pipeline"
)

var ErrClosed = errors.New("scheduler is shut down")

type Config struct {
	MaxConcurrentJobs int
	// AwaitPollInterval bounds how long Await can miss a terminal state when
	// notifications are dropped.
	AwaitPollInterval time.Duration
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Active    int `json:"active"`
	Pending   int `json:"pending"`
	MaxActive int `json:"maxActive"`
}

// Scheduler owns the job store, the pending queue and the concurrency budget.
// All three change only under mu.
type Scheduler struct {
	mu       sync.Mutex
	store    *job.Store
	pending  queue
	active   int
	max      int
	closed   bool
	handlers map[job.Phase]pipeline.HandlerFunc
	emitter  *notify.Emitter
	logger   *slog.Logger
	poll     time.Duration
	now      func() time.Time
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, handlers map[job.Phase]pipeline.HandlerFunc, emitter *notify.Emitter, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.AwaitPollInterval <= 0 {
		cfg.AwaitPollInterval = time.Second
	}
	if emitter == nil {
		emitter = notify.NewEmitter(0, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    job.NewStore(),
		max:      cfg.MaxConcurrentJobs,
		handlers: handlers,
		emitter:  emitter,
		logger:   logger,
		poll:     cfg.AwaitPollInterval,
		now:      time.Now,
		newID:    uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Emitter returns the notification source for job mutations.
func (s *Scheduler) Emitter() *notify.Emitter {
	return s.emitter
}

// Submit validates req, records a pending job and queues its first phase. It never
// waits for execution.
func (s *Scheduler) Submit(req job.Request) (job.Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return job.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return job.Job{}, ErrClosed
	}

	id := s.newID()
	j := s.store.Create(id, req, s.now())
	s.emitter.Publish(notify.Event{
		Type:    notify.EventJobCreated,
		JobID:   id,
		MediaID: j.MediaID,
		Changes: map[string]any{"status": j.Status, "mode": j.Mode, "input": j.Input, "title": j.Title},
	})

	state := job.NewState(req)
	s.pending.push(entry{jobID: id, state: state})
	s.logger.Info("Job submitted",
		slog.String("job_id", id),
		slog.String("mode", string(req.Mode)),
		slog.String("phase", string(state.Phase)),
	)

	s.tryDispatch()
	return j, nil
}

func (s *Scheduler) Get(id string) (job.Job, error) {
	j, ok := s.store.Get(id)
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (s *Scheduler) List() []job.Job {
	return s.store.List()
}

// Delete drops the record and any pending phase. A chain already running for the
// job finishes on its own and its results are discarded.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.store.Delete(id)
	if !ok {
		return job.ErrJobNotFound
	}
	s.pending.remove(id)

	if j.AudioPath != "" {
		if err := os.Remove(j.AudioPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove job audio", slog.String("path", j.AudioPath), slog.Any("error", err))
		}
	}

	s.emitter.Publish(notify.Event{Type: notify.EventJobDeleted, JobID: id, MediaID: j.MediaID})
	s.logger.Info("Job deleted", slog.String("job_id", id))
	return nil
}

// Await blocks until the job reaches a terminal status or ctx is done.
func (s *Scheduler) Await(ctx context.Context, id string) (job.Job, error) {
	events, unsubscribe := s.emitter.Subscribe(32)
	defer unsubscribe()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		j, ok := s.store.Get(id)
		if !ok {
			return job.Job{}, job.ErrJobNotFound
		}
		if j.Status.IsTerminal() {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case _, open := <-events:
			if !open {
				events = nil
			}
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Active: s.active, Pending: s.pending.len(), MaxActive: s.max}
}

// Shutdown stops dispatching and waits for running chains. When ctx ends first the
// running handlers are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// tryDispatch is one scheduling pass. It starts at most one chain: a finalize entry
// without using the budget, otherwise an analyze entry, otherwise any other phase,
// the latter two only while a slot is free. Callers hold mu.
func (s *Scheduler) tryDispatch() {
	if s.closed {
		return
	}

	for {
		e, ok := s.pending.take(job.PhaseFinalize)
		if !ok {
			if s.active >= s.max {
				return
			}
			e, ok = s.pending.take(job.PhaseAnalyze)
		}
		if !ok {
			e, ok = s.pending.take(job.PhaseDownload, job.PhaseTranscribe, job.PhaseProcess, job.PhaseNormalizeAudio)
		}
		if !ok {
			return
		}

		if _, exists := s.store.Get(e.jobID); !exists {
			s.logger.Debug("Dropping entry for missing job",
				slog.String("job_id", e.jobID),
				slog.Any("error", job.ErrJobNotFound),
			)
			continue
		}

		c := chainFor(e.state.Phase, e.state.Request.Mode)
		if c.budgeted {
			s.active++
		}
		s.logger.Debug("Dispatching chain",
			slog.String("job_id", e.jobID),
			slog.Any("steps", c.steps),
			slog.Int("active", s.active),
		)

		s.wg.Add(1)
		go s.execute(e, c)
		return
	}
}

// execute runs a chain, then releases its slot, queues the follow-up phase and
// triggers another pass.
func (s *Scheduler) execute(e entry, c chain) {
	defer s.wg.Done()

	err := s.runChain(e, c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.budgeted {
		s.active--
	}

	switch {
	case errors.Is(err, job.ErrJobNotFound):
		s.logger.Info("Job removed while running, results discarded", slog.String("job_id", e.jobID))
	case err != nil:
		s.fail(e.jobID, err)
	case c.next != "":
		if _, ok := s.store.Get(e.jobID); ok {
			e.state.Phase = c.next
			s.pending.push(e)
		}
	}

	s.tryDispatch()
}

func (s *Scheduler) fail(id string, err error) {
	now := s.now()
	ok := s.update(id, func(j *job.Job) {
		j.Status = job.StatusFailed
		j.CurrentPhase = "Failed"
		j.Error = err.Error()
		j.Message = "Failed: " + err.Error()
		if n := len(j.Timing); n > 0 && j.Timing[n-1].EndedAt == nil {
			j.Timing[n-1].EndedAt = &now
		}
		j.CompletedAt = &now
		j.DurationMs = now.Sub(j.CreatedAt).Milliseconds()
	})
	if !ok {
		s.logger.Info("Job removed while running, failure discarded",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Error("Job failed",
		slog.String("job_id", id),
		slog.Any("error", err),
	)
}

// update mutates a record and publishes the changed fields. It reports whether the
// record still exists.
func (s *Scheduler) update(id string, fn func(*job.Job)) bool {
	j, changes, ok := s.store.Update(id, fn)
	if !ok {
		return false
	}
	if len(changes) > 0 {
		s.emitter.Publish(notify.Event{
			Type:    notify.EventJobUpdated,
			JobID:   id,
			MediaID: j.MediaID,
			Changes: changes,
		})
	}
	return true
}

func (s *Scheduler) handler(phase job.Phase) (pipeline.HandlerFunc, error) {
	h, ok := s.handlers[phase]
	if !ok {
		return nil, fmt.Errorf("no handler for phase %s", phase)
	}
	return h, nil
}
