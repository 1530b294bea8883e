package acquire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/job"
)

type fakeRunner struct {
	run func(spec command.Spec) (command.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, spec command.Spec) (command.Result, error) {
	return f.run(spec)
}

func newTestDownloader(r command.Runner) *Downloader {
	return NewDownloader("yt-dlp", r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Sunday Service [dQw4w9WgXcQ].mp4")

	var progress []float64
	r := &fakeRunner{run: func(spec command.Spec) (command.Result, error) {
		assert.Contains(t, spec.Args, "worst[ext=mp4]/worst")
		spec.OnStdout("[download]   3.5% of ~ 10.00MiB at 1.00MiB/s ETA 00:09")
		spec.OnStdout("[download] 100.0% of 10.00MiB in 00:10")
		require.NoError(t, os.WriteFile(file, []byte("video"), 0o644))
		spec.OnStdout(file)
		return command.Result{}, nil
	}}

	res, err := newTestDownloader(r).Download(context.Background(), "https://example.com/watch?v=1", dir, func(p float64) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, file, res.Path)
	assert.Equal(t, "Sunday Service", res.Title)
	assert.Equal(t, []float64{3.5, 100}, progress)
}

func TestDownload_Failures(t *testing.T) {
	dir := t.TempDir()

	t.Run("process error", func(t *testing.T) {
		r := &fakeRunner{run: func(command.Spec) (command.Result, error) {
			return command.Result{ExitCode: 1}, &job.ExternalProcessError{Tool: "yt-dlp", ExitCode: 1}
		}}
		_, err := newTestDownloader(r).Download(context.Background(), "https://example.com/x", dir, nil)
		assert.ErrorIs(t, err, job.ErrExternalProcess)
	})

	t.Run("no path reported", func(t *testing.T) {
		r := &fakeRunner{run: func(command.Spec) (command.Result, error) { return command.Result{}, nil }}
		_, err := newTestDownloader(r).Download(context.Background(), "https://example.com/x", dir, nil)
		var procErr *job.ExternalProcessError
		require.True(t, errors.As(err, &procErr))
		assert.Contains(t, procErr.Message, "without reporting a file path")
	})
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "Sunday Service", TitleFromFilename("/x/Sunday Service [dQw4w9WgXcQ].mp4"))
	assert.Equal(t, "plain", TitleFromFilename("/x/plain.webm"))
}
