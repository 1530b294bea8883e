// Package acquire downloads remote videos with yt-dlp.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/job"
)

var progressLine = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// Result describes a finished download.
type Result struct {
	Path  string
	Title string
}

// Downloader invokes yt-dlp with the fast profile: lowest quality, no re-encode,
// no aspect-ratio handling.
type Downloader struct {
	binary string
	runner command.Runner
	logger *slog.Logger
}

func NewDownloader(binary string, runner command.Runner, logger *slog.Logger) *Downloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Downloader{binary: binary, runner: runner, logger: logger}
}

// FastProfileArgs builds the yt-dlp arguments for url into dir.
func FastProfileArgs(url, dir string) []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"--progress",
		"--no-simulate",
		"-f", "worst[ext=mp4]/worst",
		"-o", filepath.Join(dir, "%(title)s [%(id)s].%(ext)s"),
		"--print", "after_move:filepath",
		url,
	}
}

// Download fetches url into dir, reporting percent complete through progress.
func (d *Downloader) Download(ctx context.Context, url, dir string, progress func(float64)) (Result, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create download dir: %w", err)
	}

	var path string
	_, err := d.runner.Run(ctx, command.Spec{
		Name: d.binary,
		Args: FastProfileArgs(url, dir),
		OnStdout: func(line string) {
			if m := progressLine.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil && progress != nil {
					progress(pct)
				}
				return
			}
			if candidate := strings.TrimSpace(line); filepath.IsAbs(candidate) {
				path = candidate
			}
		},
		OnStderr: func(line string) {
			d.logger.Debug("yt-dlp", slog.String("line", line))
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w", url, err)
	}

	if path == "" {
		return Result{}, &job.ExternalProcessError{Tool: d.binary, Message: "download finished without reporting a file path"}
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, &job.ExternalProcessError{Tool: d.binary, Message: fmt.Sprintf("downloaded file missing: %s", path), Err: err}
	}

	return Result{Path: path, Title: TitleFromFilename(path)}, nil
}

var videoIDSuffix = regexp.MustCompile(`\s*\[[A-Za-z0-9_-]{6,}\]$`)

// TitleFromFilename strips the extension and the trailing "[id]" yt-dlp appends.
func TitleFromFilename(path string) string {
	title := job.TitleFromPath(path)
	return strings.TrimSpace(videoIDSuffix.ReplaceAllString(title, ""))
}
