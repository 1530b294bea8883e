package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_InitialPhase(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Phase
	}{
		{name: "url full", req: Request{Input: "https://example.com/v", Mode: ModeFull}, want: PhaseDownload},
		{name: "file full", req: Request{Input: "/clips/a.mp4", Mode: ModeFull}, want: PhaseTranscribe},
		{name: "file transcribe-only", req: Request{Input: "/clips/a.mp4", Mode: ModeTranscribeOnly}, want: PhaseTranscribe},
		{name: "analysis-only", req: Request{Input: "/clips/a.mp4", Mode: ModeAnalysisOnly}, want: PhaseAnalyze},
		{name: "process-only", req: Request{Input: "/clips/a.mp4", Mode: ModeProcessOnly}, want: PhaseProcess},
		{name: "normalize-audio", req: Request{Input: "/clips/a.mp4", Mode: ModeNormalizeAudio}, want: PhaseNormalizeAudio},
		{name: "download-and-process", req: Request{Input: "https://example.com/v", Mode: ModeDownloadAndProcess}, want: PhaseDownload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			require.NoError(t, tt.req.Validate())
			assert.Equal(t, tt.want, tt.req.InitialPhase())
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{name: "missing input", req: Request{Mode: ModeFull}, wantErr: true},
		{name: "unknown mode", req: Request{Input: "/a.mp4", Mode: "everything"}, wantErr: true},
		{name: "process url", req: Request{Input: "https://x/y", Mode: ModeProcessOnly}, wantErr: true},
		{name: "analysis by media id", req: Request{Mode: ModeAnalysisOnly, MediaID: "m1"}, wantErr: false},
		{name: "default mode", req: Request{Input: "/a.mp4"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_UpdateReportsChanges(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	req := Request{Input: "/clips/sermon.mp4"}
	req.Normalize()

	created := s.Create("job-1", req, now)
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, "sermon", created.Title)
	assert.Equal(t, "/clips/sermon.mp4", created.VideoPath)

	updated, changes, ok := s.Update("job-1", func(j *Job) {
		j.Status = StatusTranscribing
		j.Progress = 30
	})
	require.True(t, ok)
	assert.Equal(t, 30, updated.Progress)
	assert.Equal(t, map[string]any{"status": StatusTranscribing, "progress": 30}, changes)

	_, changes, ok = s.Update("job-1", func(j *Job) { j.Progress = 30 })
	require.True(t, ok)
	assert.Empty(t, changes)

	_, ok = s.Delete("job-1")
	require.True(t, ok)

	_, _, ok = s.Update("job-1", func(j *Job) { j.Progress = 40 })
	assert.False(t, ok)
}

func TestStore_ListOrdersByCreation(t *testing.T) {
	s := NewStore()
	base := time.Now()
	s.Create("b", Request{Input: "/b.mp4"}, base.Add(time.Second))
	s.Create("a", Request{Input: "/a.mp4"}, base)

	jobs := s.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Create("job-1", Request{Input: "/a.mp4"}, time.Now())
	s.Update("job-1", func(j *Job) { j.Tags = []string{"people:alice"} })

	got, ok := s.Get("job-1")
	require.True(t, ok)
	got.Tags[0] = "mutated"

	again, _ := s.Get("job-1")
	assert.Equal(t, "people:alice", again.Tags[0])
}

func TestState_Apply(t *testing.T) {
	req := Request{Input: "https://example.com/v", Mode: ModeFull}
	req.Normalize()
	st := NewState(req)
	assert.Equal(t, PhaseDownload, st.Phase)
	assert.Empty(t, st.VideoPath)

	st.Apply(&Acquisition{VideoPath: "/clips/v.mp4", Title: "v", MediaID: "m1"})
	assert.Equal(t, "/clips/v.mp4", st.VideoPath)
	assert.Equal(t, "m1", st.MediaID)

	st.Apply(&Processed{OriginalPath: "/clips/v.mp4", OutputPath: "/clips/v_fixed.mp4"})
	assert.Equal(t, "/clips/v_fixed.mp4", st.VideoPath)
	assert.True(t, st.Processed.Renamed())
}

func TestExternalProcessError(t *testing.T) {
	cause := errors.New("signal: killed")
	err := &ExternalProcessError{Tool: "ffmpeg", ExitCode: 1, Err: cause}

	assert.ErrorIs(t, err, ErrExternalProcess)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ffmpeg: process exited with code 1: signal: killed", err.Error())

	err = &ExternalProcessError{Tool: "bridge", Message: "model not found"}
	assert.Equal(t, "bridge: model not found", err.Error())
}

func TestStore_ChangesDoNotAliasRecord(t *testing.T) {
	s := NewStore()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Create("job-1", Request{Input: "/a.mp4"}, start)

	_, changes, ok := s.Update("job-1", func(j *Job) {
		j.Tags = append(j.Tags, "people:alice")
		j.Timing = append(j.Timing, PhaseTiming{Phase: PhaseTranscribe, StartedAt: start})
	})
	require.True(t, ok)
	published := changes["timing"].([]PhaseTiming)
	tags := changes["tags"].([]string)

	end := start.Add(time.Minute)
	_, _, ok = s.Update("job-1", func(j *Job) {
		j.Timing[len(j.Timing)-1].EndedAt = &end
		j.Tags[0] = "people:bob"
	})
	require.True(t, ok)

	assert.Nil(t, published[0].EndedAt)
	assert.Equal(t, "people:alice", tags[0])
}

func TestJob_CloneCopiesPhaseEnd(t *testing.T) {
	end := time.Now()
	j := Job{Timing: []PhaseTiming{{Phase: PhaseAnalyze, EndedAt: &end}}}

	c := j.Clone()
	*c.Timing[0].EndedAt = end.Add(time.Hour)

	assert.Equal(t, end, *j.Timing[0].EndedAt)
}
