package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/llm"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

// scriptedRunner replays stdout/stderr lines and exits with the given code.
type scriptedRunner struct {
	stdout   []string
	stderr   []string
	exitCode int
	request  Request
}

func (s *scriptedRunner) Run(_ context.Context, spec command.Spec) (command.Result, error) {
	body, _ := io.ReadAll(spec.Stdin)
	_ = json.Unmarshal(body, &s.request)

	for _, l := range s.stderr {
		spec.OnStderr(l)
	}
	for _, l := range s.stdout {
		spec.OnStdout(l)
	}
	if s.exitCode != 0 {
		return command.Result{ExitCode: s.exitCode}, &job.ExternalProcessError{Tool: spec.Name, ExitCode: s.exitCode}
	}
	return command.Result{}, nil
}

func newTestClient(r command.Runner) *Client {
	return NewClient("python3", "service.py", r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCall(t *testing.T) {
	tests := []struct {
		name     string
		runner   *scriptedRunner
		wantData string
		wantErr  string
	}{
		{
			name: "result on exit zero",
			runner: &scriptedRunner{stdout: []string{
				`{"type":"progress","phase":"transcription","progress":40,"message":"Transcribing..."}`,
				`not json at all`,
				`{"type":"result","data":{"available":true}}`,
			}},
			wantData: `{"available":true}`,
		},
		{
			name: "error message wins on non-zero exit",
			runner: &scriptedRunner{
				stdout:   []string{`{"type":"error","message":"Whisper not installed"}`},
				exitCode: 1,
			},
			wantErr: "Whisper not installed",
		},
		{
			name:    "exit code reported without error message",
			runner:  &scriptedRunner{exitCode: 2},
			wantErr: "process exited with code 2",
		},
		{
			name:    "null data rejected",
			runner:  &scriptedRunner{stdout: []string{`{"type":"result","data":null}`}},
			wantErr: "process exited without a result",
		},
		{
			name:    "no result at all",
			runner:  &scriptedRunner{},
			wantErr: "process exited without a result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := newTestClient(tt.runner).Call(context.Background(), Request{Command: CommandCheckDependencies}, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, job.ErrExternalProcess)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantData, string(data))
		})
	}
}

func TestCall_ProgressSources(t *testing.T) {
	r := &scriptedRunner{
		stderr: []string{" 45%|████▌     | 450/1000 [00:04<00:05]", "some warning"},
		stdout: []string{
			`{"type":"progress","phase":"transcription","progress":30,"message":"Loading model"}`,
			`{"type":"result","data":{}}`,
		},
	}

	var got []Progress
	_, err := newTestClient(r).Call(context.Background(), Request{Command: CommandTranscribe}, func(p Progress) {
		got = append(got, p)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Progress{Source: SourceEngine, Percent: 45}, got[0])
	assert.Equal(t, Progress{Source: SourceProtocol, Phase: "transcription", Percent: 30, Message: "Loading model"}, got[1])
}

func TestTranscribe(t *testing.T) {
	r := &scriptedRunner{stdout: []string{
		`{"type":"result","data":{"text":"Hello world","language":"en","segments":[{"start":1.5,"end":4.2,"text":"Hello world"}]}}`,
	}}

	out, err := newTestClient(r).Transcribe(context.Background(), "/tmp/a.wav", "base", "en", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out.Text)
	assert.Equal(t, "1\n00:00:01,500 --> 00:00:04,200\nHello world\n\n", out.SRT)
	assert.Equal(t, Request{Command: CommandTranscribe, AudioPath: "/tmp/a.wav", Model: "base", Language: "en"}, r.request)
}

func TestCheckModel(t *testing.T) {
	r := &scriptedRunner{stdout: []string{`{"type":"result","data":{"available":false}}`}}

	ok, err := newTestClient(r).CheckModel(context.Background(), "http://localhost:11434", "qwen2.5:7b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "qwen2.5:7b", r.request.AIModel)
}

func TestCheckDependencies(t *testing.T) {
	r := &scriptedRunner{stdout: []string{`{"type":"result","data":{"whisper":true,"requests":false}}`}}

	deps, err := newTestClient(r).CheckDependencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"whisper": true, "requests": false}, deps)
}

func TestCall_MalformedResult(t *testing.T) {
	r := &scriptedRunner{stdout: []string{`{"type":"result","data":"oops"}`}}

	_, err := newTestClient(r).CheckModel(context.Background(), "", "")
	var procErr *job.ExternalProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "malformed check_model result", procErr.Message)
}

func TestAnalyze(t *testing.T) {
	r := &scriptedRunner{
		stderr: []string{" 50%|#####     |"},
		stdout: []string{
			`{"type":"progress","phase":"analysis","progress":70,"message":"Analyzing 1 chunks..."}`,
			`{"type":"progress","phase":"analysis","progress":-1,"message":"waiting"}`,
			`{"type":"result","data":{"sections_count":1,"sections":[{"category":"story","description":"The fishing trip","start_time":"1:05","end_time":"3:10","quotes":[{"timestamp":"1:20","text":"we never caught a thing","significance":"sets up the joke"}]}],"suggested_title":"Fishing Trip 2023-05-01.mp4"}}`,
		},
	}

	var seen []int
	req := analysis.Request{
		Options:    llm.Options{Provider: "ollama", Model: "qwen2.5:7b", Endpoint: "http://localhost:11434"},
		Title:      "clip",
		Text:       "we never caught a thing",
		Segments:   []srt.Segment{{Start: 80, End: 83, Text: "we never caught a thing"}},
		ReportPath: "/tmp/clip_analysis.txt",
	}
	out, err := newTestClient(r).Analyze(context.Background(), req, func(done, total int) {
		assert.Equal(t, 100, total)
		seen = append(seen, done)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{70}, seen)
	assert.Equal(t, CommandAnalyze, r.request.Command)
	assert.Equal(t, "qwen2.5:7b", r.request.AIModel)
	assert.Equal(t, "/tmp/clip_analysis.txt", r.request.OutputFile)
	assert.Len(t, r.request.Segments, 1)

	require.Len(t, out.Sections, 1)
	assert.Equal(t, "1:05", out.Sections[0].StartTime)
	assert.Equal(t, "story", out.Sections[0].Category)
	require.Len(t, out.Sections[0].Quotes, 1)
	assert.Equal(t, "we never caught a thing", out.Sections[0].Quotes[0].Text)
	assert.Equal(t, "fishing trip", out.SuggestedTitle)
	assert.Equal(t, "/tmp/clip_analysis.txt", out.ReportPath)
	assert.Equal(t, "ollama", out.Provider)
}

func TestAnalyze_HelperError(t *testing.T) {
	r := &scriptedRunner{
		stdout:   []string{`{"type":"error","message":"AI analysis failed: Model 'x' not found in Ollama"}`},
		exitCode: 1,
	}

	_, err := newTestClient(r).Analyze(context.Background(), analysis.Request{Text: "t"}, nil)
	var procErr *job.ExternalProcessError
	require.True(t, errors.As(err, &procErr))
	assert.Contains(t, procErr.Message, "not found in Ollama")
}
