package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/notify"
	"github.com/cuongbtq/mediaflow/internal/pipeline"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// call is one blocked handler invocation. The test decides when and how it ends.
type call struct {
	jobID string
	phase job.Phase
	in    pipeline.Input
	done  chan error
}

func (c *call) finish()          { c.done <- nil }
func (c *call) failWith(e error) { c.done <- e }

// controller provides handlers that park every phase until the test releases it.
type controller struct {
	calls chan *call

	mu      sync.Mutex
	running int
	peak    int
}

func newController() *controller {
	return &controller{calls: make(chan *call, 16)}
}

func (c *controller) handlers() map[job.Phase]pipeline.HandlerFunc {
	m := map[job.Phase]pipeline.HandlerFunc{}
	for _, phase := range []job.Phase{
		job.PhaseDownload, job.PhaseTranscribe, job.PhaseAnalyze,
		job.PhaseProcess, job.PhaseNormalizeAudio, job.PhaseFinalize,
	} {
		m[phase] = func(ctx context.Context, in pipeline.Input) (job.Result, error) {
			budgeted := phase != job.PhaseFinalize
			if budgeted {
				c.mu.Lock()
				c.running++
				c.peak = max(c.peak, c.running)
				c.mu.Unlock()
				defer func() {
					c.mu.Lock()
					c.running--
					c.mu.Unlock()
				}()
			}

			cl := &call{jobID: in.JobID, phase: phase, in: in, done: make(chan error, 1)}
			c.calls <- cl
			if err := <-cl.done; err != nil {
				return nil, err
			}
			return resultFor(phase, in), nil
		}
	}
	return m
}

func resultFor(phase job.Phase, in pipeline.Input) job.Result {
	switch phase {
	case job.PhaseDownload:
		return &job.Acquisition{VideoPath: "/clips/" + in.JobID + ".mp4", Title: "downloaded", MediaID: "media-" + in.JobID}
	case job.PhaseTranscribe:
		return &job.Transcript{Text: "text", SRT: "srt"}
	case job.PhaseAnalyze:
		return &job.Analysis{ReportPath: "/tmp/report.txt", People: []string{"Alice"}, Topics: []string{"faith"}}
	case job.PhaseProcess, job.PhaseNormalizeAudio:
		return &job.Processed{OriginalPath: in.State.VideoPath, OutputPath: in.State.VideoPath}
	default:
		return &job.Completion{Message: "done"}
	}
}

func (c *controller) next(t *testing.T) *call {
	t.Helper()
	select {
	case cl := <-c.calls:
		return cl
	case <-time.After(waitTimeout):
		t.Fatal("no phase started")
		return nil
	}
}

func (c *controller) expect(t *testing.T, jobID string, phase job.Phase) *call {
	t.Helper()
	cl := c.next(t)
	require.Equal(t, jobID, cl.jobID, "unexpected job for phase %s", cl.phase)
	require.Equal(t, phase, cl.phase)
	return cl
}

func (c *controller) idle(t *testing.T) {
	t.Helper()
	select {
	case cl := <-c.calls:
		t.Fatalf("unexpected phase %s for job %s", cl.phase, cl.jobID)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestScheduler(t *testing.T, maxJobs int, c *controller) *Scheduler {
	t.Helper()
	s := New(Config{MaxConcurrentJobs: maxJobs, AwaitPollInterval: 10 * time.Millisecond},
		c.handlers(), notify.NewEmitter(1000, discardLogger()), discardLogger())
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("job-%d", n)
	}
	return s
}

func await(t *testing.T, s *Scheduler, id string) job.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	j, err := s.Await(ctx, id)
	require.NoError(t, err)
	return j
}

func phasesOf(j job.Job) []job.Phase {
	out := make([]job.Phase, 0, len(j.Timing))
	for _, t := range j.Timing {
		out = append(out, t.Phase)
	}
	return out
}

func TestChainFor(t *testing.T) {
	tests := []struct {
		entry    job.Phase
		mode     job.Mode
		steps    []job.Phase
		budgeted bool
		next     job.Phase
	}{
		{job.PhaseDownload, job.ModeFull, []job.Phase{job.PhaseDownload, job.PhaseTranscribe}, true, job.PhaseAnalyze},
		{job.PhaseDownload, job.ModeTranscribeOnly, []job.Phase{job.PhaseDownload, job.PhaseTranscribe}, true, job.PhaseFinalize},
		{job.PhaseDownload, job.ModeDownloadAndProcess, []job.Phase{job.PhaseDownload, job.PhaseProcess}, true, job.PhaseFinalize},
		{job.PhaseTranscribe, job.ModeFull, []job.Phase{job.PhaseTranscribe}, true, job.PhaseAnalyze},
		{job.PhaseTranscribe, job.ModeTranscribeOnly, []job.Phase{job.PhaseTranscribe}, true, job.PhaseFinalize},
		{job.PhaseAnalyze, job.ModeAnalysisOnly, []job.Phase{job.PhaseAnalyze}, true, job.PhaseFinalize},
		{job.PhaseProcess, job.ModeProcessOnly, []job.Phase{job.PhaseProcess}, true, job.PhaseFinalize},
		{job.PhaseNormalizeAudio, job.ModeNormalizeAudio, []job.Phase{job.PhaseNormalizeAudio}, true, job.PhaseFinalize},
		{job.PhaseFinalize, job.ModeFull, []job.Phase{job.PhaseFinalize}, false, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.entry)+"/"+string(tt.mode), func(t *testing.T) {
			c := chainFor(tt.entry, tt.mode)
			assert.Equal(t, tt.steps, c.steps)
			assert.Equal(t, tt.budgeted, c.budgeted)
			assert.Equal(t, tt.next, c.next)
		})
	}
}

func TestScheduler_FullURLJob(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	j, err := s.Submit(job.Request{Input: "https://example.com/watch?v=1"})
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, job.ModeFull, j.Mode)

	c.expect(t, j.ID, job.PhaseDownload).finish()
	c.expect(t, j.ID, job.PhaseTranscribe).finish()
	c.expect(t, j.ID, job.PhaseAnalyze).finish()
	c.expect(t, j.ID, job.PhaseFinalize).finish()

	done := await(t, s, j.ID)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "done", done.Message)
	assert.Equal(t, "media-"+j.ID, done.MediaID)
	assert.Equal(t, "/tmp/report.txt", done.AnalysisPath)
	assert.Equal(t, []string{"Alice", "faith"}, done.Tags)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, []job.Phase{job.PhaseDownload, job.PhaseTranscribe, job.PhaseAnalyze, job.PhaseFinalize}, phasesOf(done))
	for _, timing := range done.Timing {
		assert.NotNil(t, timing.EndedAt, timing.Phase)
	}
	assert.Equal(t, Stats{Active: 0, Pending: 0, MaxActive: 1}, s.Stats())
}

func TestScheduler_ModePaths(t *testing.T) {
	tests := []struct {
		name  string
		req   job.Request
		steps []job.Phase
	}{
		{
			name:  "transcribe only file",
			req:   job.Request{Input: "/videos/a.mp4", Mode: job.ModeTranscribeOnly},
			steps: []job.Phase{job.PhaseTranscribe, job.PhaseFinalize},
		},
		{
			name:  "analysis only",
			req:   job.Request{Mode: job.ModeAnalysisOnly, MediaID: "m1", TranscriptText: "t"},
			steps: []job.Phase{job.PhaseAnalyze, job.PhaseFinalize},
		},
		{
			name:  "download and process",
			req:   job.Request{Input: "https://example.com/v", Mode: job.ModeDownloadAndProcess},
			steps: []job.Phase{job.PhaseDownload, job.PhaseProcess, job.PhaseFinalize},
		},
		{
			name:  "normalize audio",
			req:   job.Request{Input: "/videos/a.mp4", Mode: job.ModeNormalizeAudio},
			steps: []job.Phase{job.PhaseNormalizeAudio, job.PhaseFinalize},
		},
		{
			name:  "process only",
			req:   job.Request{Input: "/videos/a.mp4", Mode: job.ModeProcessOnly},
			steps: []job.Phase{job.PhaseProcess, job.PhaseFinalize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController()
			s := newTestScheduler(t, 1, c)

			j, err := s.Submit(tt.req)
			require.NoError(t, err)
			for _, phase := range tt.steps {
				c.expect(t, j.ID, phase).finish()
			}

			done := await(t, s, j.ID)
			assert.Equal(t, job.StatusCompleted, done.Status)
			assert.Equal(t, tt.steps, phasesOf(done))
		})
	}
}

func TestScheduler_SerializesWithBudgetOne(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4"})
	require.NoError(t, err)
	b, err := s.Submit(job.Request{Input: "/videos/b.mp4"})
	require.NoError(t, err)

	transcribeA := c.expect(t, a.ID, job.PhaseTranscribe)
	c.idle(t)
	pending, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, pending.Status)

	transcribeA.finish()
	// a's analyze outranks b's transcribe
	c.expect(t, a.ID, job.PhaseAnalyze).finish()
	// finalize outranks everything
	finalizeA := c.expect(t, a.ID, job.PhaseFinalize)

	// finalize holds no slot, so another pass can start b while it runs
	_, err = s.Submit(job.Request{Input: "/videos/c.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	transcribeB := c.expect(t, b.ID, job.PhaseTranscribe)

	finalizeA.finish()
	transcribeB.finish()
	await(t, s, a.ID)

	c.mu.Lock()
	assert.Equal(t, 1, c.peak)
	c.mu.Unlock()
}

func TestScheduler_BudgetNeverExceeded(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 2, c)

	var ids []string
	for i := range 4 {
		j, err := s.Submit(job.Request{Input: fmt.Sprintf("/videos/%d.mp4", i), Mode: job.ModeTranscribeOnly})
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}

	first := c.next(t)
	second := c.next(t)
	c.idle(t)
	assert.Equal(t, Stats{Active: 2, Pending: 2, MaxActive: 2}, s.Stats())

	for _, cl := range []*call{first, second} {
		cl.finish()
	}
	for range 6 {
		c.next(t).finish()
	}
	for _, id := range ids {
		assert.Equal(t, job.StatusCompleted, await(t, s, id).Status)
	}

	c.mu.Lock()
	assert.LessOrEqual(t, c.peak, 2)
	c.mu.Unlock()
}

func TestScheduler_FailureReleasesSlot(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "https://example.com/a"})
	require.NoError(t, err)
	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)

	c.expect(t, a.ID, job.PhaseDownload).finish()
	c.expect(t, a.ID, job.PhaseTranscribe).failWith(&job.ExternalProcessError{Tool: "analysis bridge", ExitCode: 1})

	failed := await(t, s, a.ID)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Equal(t, "analysis bridge: process exited with code 1", failed.Error)
	assert.NotNil(t, failed.CompletedAt)

	c.expect(t, b.ID, job.PhaseTranscribe).finish()
	c.expect(t, b.ID, job.PhaseFinalize).finish()
	assert.Equal(t, job.StatusCompleted, await(t, s, b.ID).Status)
}

func TestScheduler_ProgressUpdates(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)
	events, cancel := s.Emitter().Subscribe(256)
	defer cancel()

	j, err := s.Submit(job.Request{Input: "/videos/a.mp4"})
	require.NoError(t, err)
	ctx := context.Background()

	tr := c.expect(t, j.ID, job.PhaseTranscribe)
	tr.in.Report(ctx, 50, "half")
	tr.in.Report(ctx, 30, "stale")
	tr.finish()

	an := c.expect(t, j.ID, job.PhaseAnalyze)
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, job.StatusAnalyzing, got.Status)

	an.in.Report(ctx, job.IndeterminateProgress, "thinking")
	an.finish()

	fin := c.expect(t, j.ID, job.PhaseFinalize)
	fin.in.Report(ctx, 95, "saving")
	fin.finish()
	await(t, s, j.ID)

	var progress []int
	for {
		select {
		case e := <-events:
			if e.JobID != j.ID {
				continue
			}
			if p, ok := e.Changes["progress"]; ok {
				progress = append(progress, p.(int))
			}
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}

	assert.Equal(t, []int{50, job.IndeterminateProgress, 95, 100}, progress)
	for _, p := range progress {
		assert.True(t, p == job.IndeterminateProgress || (p >= 0 && p <= 100), "progress %d out of range", p)
	}
}

func TestScheduler_ProgressClamped(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	j, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)

	tr := c.expect(t, j.ID, job.PhaseTranscribe)
	tr.in.Report(context.Background(), 150, "")
	tr.in.Report(context.Background(), -7, "")
	tr.finish()

	fin := c.expect(t, j.ID, job.PhaseFinalize)
	got, err := s.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	fin.finish()
}

func TestScheduler_DeletePending(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)
	events, cancel := s.Emitter().Subscribe(64)
	defer cancel()

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)

	running := c.expect(t, a.ID, job.PhaseTranscribe)
	require.NoError(t, s.Delete(b.ID))
	assert.ErrorIs(t, s.Delete(b.ID), job.ErrJobNotFound)
	_, err = s.Get(b.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)

	running.finish()
	c.expect(t, a.ID, job.PhaseFinalize).finish()
	await(t, s, a.ID)
	c.idle(t)

	deleted := false
	for len(events) > 0 {
		e := <-events
		if e.Type == notify.EventJobDeleted && e.JobID == b.ID {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestScheduler_DeleteRunningDiscardsResults(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4"})
	require.NoError(t, err)

	tr := c.expect(t, a.ID, job.PhaseTranscribe)
	audio := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	tr.in.SetAudioPath(audio)

	require.NoError(t, s.Delete(a.ID))
	assert.NoFileExists(t, audio)

	tr.finish()
	c.idle(t)

	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	c.expect(t, b.ID, job.PhaseTranscribe).finish()
	c.expect(t, b.ID, job.PhaseFinalize).finish()
	await(t, s, b.ID)
}

func TestScheduler_SubmitRejectsInvalid(t *testing.T) {
	s := newTestScheduler(t, 1, newController())

	_, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: "bogus"})
	assert.ErrorIs(t, err, job.ErrInvalidRequest)

	_, err = s.Submit(job.Request{Input: "https://example.com/v", Mode: job.ModeProcessOnly})
	assert.ErrorIs(t, err, job.ErrInvalidRequest)

	assert.Empty(t, s.List())
}

func TestScheduler_AwaitHonorsContext(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	j, err := s.Submit(job.Request{Input: "/videos/a.mp4"})
	require.NoError(t, err)
	running := c.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = s.Await(ctx, j.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = s.Await(context.Background(), "missing")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
	running.finish()
}

func TestScheduler_Shutdown(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	running := c.expect(t, a.ID, job.PhaseTranscribe)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Shutdown(context.Background()) }()

	running.finish()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("shutdown did not return")
	}

	c.idle(t)
	_, err = s.Submit(job.Request{Input: "/videos/b.mp4"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_FullFileJob(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	j, err := s.Submit(job.Request{Input: "/videos/talk.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "/videos/talk.mp4", j.Input)

	c.expect(t, j.ID, job.PhaseTranscribe).finish()
	c.expect(t, j.ID, job.PhaseAnalyze).finish()
	c.expect(t, j.ID, job.PhaseFinalize).finish()

	done := await(t, s, j.ID)
	assert.Equal(t, job.StatusCompleted, done.Status)
	assert.Equal(t, []job.Phase{job.PhaseTranscribe, job.PhaseAnalyze, job.PhaseFinalize}, phasesOf(done))
}

func TestScheduler_AnalysisWithoutTranscriptFails(t *testing.T) {
	c := newController()
	phases := pipeline.NewPhases(pipeline.Deps{}, pipeline.Config{DefaultProvider: "ollama"}, discardLogger())
	handlers := c.handlers()
	handlers[job.PhaseAnalyze] = phases.Analyze

	s := New(Config{MaxConcurrentJobs: 1, AwaitPollInterval: 10 * time.Millisecond},
		handlers, notify.NewEmitter(100, discardLogger()), discardLogger())

	a, err := s.Submit(job.Request{Mode: job.ModeAnalysisOnly, MediaID: "m1"})
	require.NoError(t, err)
	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)

	failed := await(t, s, a.ID)
	assert.Equal(t, job.StatusFailed, failed.Status)
	assert.Equal(t, job.ErrMissingTranscript.Error(), failed.Error)

	c.expect(t, b.ID, job.PhaseTranscribe).finish()
	c.expect(t, b.ID, job.PhaseFinalize).finish()
	assert.Equal(t, job.StatusCompleted, await(t, s, b.ID).Status)
}

func TestScheduler_DeleteDuringProcess(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: job.ModeProcessOnly})
	require.NoError(t, err)
	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeNormalizeAudio})
	require.NoError(t, err)

	processing := c.expect(t, a.ID, job.PhaseProcess)
	require.NoError(t, s.Delete(a.ID))
	processing.finish()

	// a never reaches finalize and its slot goes to b
	c.expect(t, b.ID, job.PhaseNormalizeAudio).finish()
	c.expect(t, b.ID, job.PhaseFinalize).finish()
	assert.Equal(t, job.StatusCompleted, await(t, s, b.ID).Status)

	_, err = s.Get(a.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
	c.idle(t)
}

// syncBuffer collects log output written from scheduler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScheduler_DeletedJobFailureIsDiscarded(t *testing.T) {
	logs := &syncBuffer{}
	c := newController()
	s := New(Config{MaxConcurrentJobs: 1, AwaitPollInterval: 10 * time.Millisecond},
		c.handlers(), notify.NewEmitter(1000, discardLogger()), slog.New(slog.NewTextHandler(logs, nil)))

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4"})
	require.NoError(t, err)
	tr := c.expect(t, a.ID, job.PhaseTranscribe)

	require.NoError(t, s.Delete(a.ID))
	tr.failWith(errors.New("engine crashed"))

	b, err := s.Submit(job.Request{Input: "/videos/b.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	c.expect(t, b.ID, job.PhaseTranscribe).finish()
	c.expect(t, b.ID, job.PhaseFinalize).finish()
	await(t, s, b.ID)

	out := logs.String()
	assert.NotContains(t, out, "level=ERROR")
	assert.Contains(t, out, "failure discarded")
	_, err = s.Get(a.ID)
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestScheduler_PublishedTimingIsStable(t *testing.T) {
	c := newController()
	s := newTestScheduler(t, 1, c)

	a, err := s.Submit(job.Request{Input: "/videos/a.mp4", Mode: job.ModeTranscribeOnly})
	require.NoError(t, err)
	tr := c.expect(t, a.ID, job.PhaseTranscribe)

	var started []job.PhaseTiming
	for _, ev := range s.Emitter().Since(0) {
		if timing, ok := ev.Changes["timing"].([]job.PhaseTiming); ok {
			started = timing
		}
	}
	require.NotEmpty(t, started)
	require.Nil(t, started[len(started)-1].EndedAt)

	tr.finish()
	c.expect(t, a.ID, job.PhaseFinalize).finish()
	await(t, s, a.ID)

	assert.Nil(t, started[len(started)-1].EndedAt)
}
