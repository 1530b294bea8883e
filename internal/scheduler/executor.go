package scheduler

import (
	"log/slog"
	"slices"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/notify"
	"github.com/cuongbtq/mediaflow/internal/pipeline"
)

const progressBuffer = 16

// runChain runs the chain's phases in order on the entry's state. The first
// failing phase aborts the chain.
func (s *Scheduler) runChain(e entry, c chain) error {
	for _, phase := range c.steps {
		h, err := s.handler(phase)
		if err != nil {
			return err
		}

		e.state.Phase = phase
		if !s.beginPhase(e.jobID, phase) {
			return job.ErrJobNotFound
		}

		result, err := s.runPhase(e, h)
		if err != nil {
			return err
		}

		e.state.Apply(result)
		if !s.endPhase(e.jobID, phase, result) {
			return job.ErrJobNotFound
		}
	}
	return nil
}

// runPhase calls the handler with a fresh progress channel and applies every
// update before returning.
func (s *Scheduler) runPhase(e entry, h pipeline.HandlerFunc) (job.Result, error) {
	updates := make(chan pipeline.Update, progressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for u := range updates {
			s.applyProgress(e.jobID, u)
		}
	}()

	result, err := h(s.ctx, pipeline.Input{
		JobID:    e.jobID,
		State:    e.state,
		Progress: updates,
		SetAudioPath: func(path string) {
			s.update(e.jobID, func(j *job.Job) { j.AudioPath = path })
		},
	})
	close(updates)
	<-drained
	return result, err
}

// applyProgress keeps progress monotonic within 0..100. The indeterminate value
// is always accepted and any real reading replaces it.
func (s *Scheduler) applyProgress(id string, u pipeline.Update) {
	s.update(id, func(j *job.Job) {
		switch {
		case u.Percent == job.IndeterminateProgress:
			j.Progress = job.IndeterminateProgress
		case u.Percent > j.Progress:
			j.Progress = min(u.Percent, 100)
		}
		if u.Message != "" {
			j.Message = u.Message
		}
	})
}

func (s *Scheduler) beginPhase(id string, phase job.Phase) bool {
	now := s.now()
	ok := s.update(id, func(j *job.Job) {
		j.Status = phase.Status()
		j.CurrentPhase = phase.Label()
		j.Timing = append(j.Timing, job.PhaseTiming{Phase: phase, StartedAt: now})
	})
	if ok {
		s.logger.Info("Phase started", slog.String("job_id", id), slog.String("phase", string(phase)))
	}
	return ok
}

// endPhase closes the phase timing and copies the result's visible fields onto
// the record.
func (s *Scheduler) endPhase(id string, phase job.Phase, result job.Result) bool {
	now := s.now()
	ok := s.update(id, func(j *job.Job) {
		if n := len(j.Timing); n > 0 && j.Timing[n-1].Phase == phase {
			j.Timing[n-1].EndedAt = &now
		}

		switch r := result.(type) {
		case *job.Acquisition:
			j.VideoPath = r.VideoPath
			if r.Title != "" {
				j.Title = r.Title
			}
			if r.MediaID != "" {
				j.MediaID = r.MediaID
			}
		case *job.Transcript:
			j.AudioPath = ""
		case *job.Analysis:
			j.AnalysisPath = r.ReportPath
			j.Tags = append(slices.Clone(r.People), r.Topics...)
		case *job.Processed:
			if r.OutputPath != "" {
				j.VideoPath = r.OutputPath
			}
		case *job.Completion:
			if r.MediaID != "" {
				j.MediaID = r.MediaID
			}
			j.Status = job.StatusCompleted
			j.CurrentPhase = "Completed"
			j.Progress = 100
			j.Message = r.Message
			j.CompletedAt = &now
			j.DurationMs = now.Sub(j.CreatedAt).Milliseconds()
		}
	})
	if !ok {
		return false
	}

	if p, isProcessed := result.(*job.Processed); isProcessed && p.Renamed() {
		j, _ := s.store.Get(id)
		s.emitter.Publish(notify.Event{
			Type:    notify.EventJobRenamed,
			JobID:   id,
			MediaID: j.MediaID,
			Changes: map[string]any{"from": p.OriginalPath, "to": p.OutputPath},
		})
	}
	s.logger.Info("Phase finished", slog.String("job_id", id), slog.String("phase", string(phase)))
	return true
}
