// Package media wraps ffmpeg and ffprobe.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuongbtq/mediaflow/internal/command"
	"github.com/cuongbtq/mediaflow/internal/job"
)

// Loudness targets for EBU R128 normalization.
const (
	TargetIntegratedLUFS = -16.0
	TargetTruePeak       = -1.5
	TargetLoudnessRange  = 11.0
)

const (
	targetWidth  = 1920
	targetHeight = 1080
	aspectSlack  = 0.01
)

// ProgressFunc receives completion in percent, 0..100.
type ProgressFunc func(percent float64)

// Info is the subset of ffprobe output the pipeline needs.
type Info struct {
	Width    int
	Height   int
	Duration float64
}

// Tool runs ffmpeg and ffprobe binaries.
type Tool struct {
	ffmpegPath  string
	ffprobePath string
	runner      command.Runner
	logger      *slog.Logger
}

// NewTool creates a Tool. Empty paths fall back to the binaries on PATH.
func NewTool(ffmpegPath, ffprobePath string, runner command.Runner, logger *slog.Logger) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Tool{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: runner, logger: logger}
}

// ExtractAudioArgs builds the ffmpeg call producing mono 16 kHz PCM WAV.
func ExtractAudioArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// ExtractAudio writes the speech-engine input for inputPath to outputPath.
func (t *Tool) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	if _, err := t.runner.Run(ctx, command.Spec{Name: t.ffmpegPath, Args: ExtractAudioArgs(inputPath, outputPath)}); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	if err := requireOutput(t.ffmpegPath, outputPath); err != nil {
		return err
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's dimensions and the container duration.
func (t *Tool) Probe(ctx context.Context, path string) (Info, error) {
	res, err := t.runner.Run(ctx, command.Spec{
		Name: t.ffprobePath,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=width,height:format=duration",
			"-of", "json",
			path,
		},
	})
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return Info{}, &job.ExternalProcessError{Tool: t.ffprobePath, Message: "unreadable probe output", Err: err}
	}

	info := Info{}
	if len(out.Streams) > 0 {
		info.Width, info.Height = out.Streams[0].Width, out.Streams[0].Height
	}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	return info, nil
}

// FixAspectRatio letterboxes inputPath into 16:9. When the video is already 16:9
// the input path is returned unchanged.
func (t *Tool) FixAspectRatio(ctx context.Context, inputPath string, progress ProgressFunc) (string, error) {
	info, err := t.Probe(ctx, inputPath)
	if err != nil {
		return "", err
	}
	if info.Width == 0 || info.Height == 0 {
		return "", &job.ExternalProcessError{Tool: t.ffprobePath, Message: fmt.Sprintf("no video stream in %s", inputPath)}
	}

	ratio := float64(info.Width) / float64(info.Height)
	if math.Abs(ratio-16.0/9.0) < aspectSlack {
		t.logger.Debug("Aspect ratio already 16:9", slog.String("path", inputPath))
		return inputPath, nil
	}

	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + "_16x9.mp4"
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		targetWidth, targetHeight, targetWidth, targetHeight,
	)
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", inputPath,
		"-vf", filter,
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "20",
		"-c:a", "copy",
		"-progress", "pipe:1", "-nostats",
		outputPath,
	}

	if err := t.runWithProgress(ctx, args, info.Duration, progress); err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("fix aspect ratio: %w", err)
	}
	if err := requireOutput(t.ffmpegPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// LoudnormFilter is the single-pass EBU R128 filter expression.
func LoudnormFilter() string {
	return fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g", TargetIntegratedLUFS, TargetTruePeak, TargetLoudnessRange)
}

// NormalizeAudio rewrites the audio track of inputPath in place. The result is
// rendered to a sibling file first and only then moved over the original.
func (t *Tool) NormalizeAudio(ctx context.Context, inputPath string, progress ProgressFunc) (string, error) {
	info, err := t.Probe(ctx, inputPath)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(inputPath)
	tmpPath := strings.TrimSuffix(inputPath, ext) + ".normalizing" + ext
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", inputPath,
		"-af", LoudnormFilter(),
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-progress", "pipe:1", "-nostats",
		tmpPath,
	}

	if err := t.runWithProgress(ctx, args, info.Duration, progress); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("normalize audio: %w", err)
	}
	if err := requireOutput(t.ffmpegPath, tmpPath); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, inputPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("replace original: %w", err)
	}
	return inputPath, nil
}

func (t *Tool) runWithProgress(ctx context.Context, args []string, duration float64, progress ProgressFunc) error {
	spec := command.Spec{Name: t.ffmpegPath, Args: args}
	if progress != nil && duration > 0 {
		spec.OnStdout = func(line string) {
			if pct, ok := ParseProgressLine(line, duration); ok {
				progress(pct)
			}
		}
	}
	_, err := t.runner.Run(ctx, spec)
	return err
}

// ParseProgressLine reads an `out_time_us=` / `out_time_ms=` line from
// `-progress` output and converts it to percent of duration.
func ParseProgressLine(line string, duration float64) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || (key != "out_time_us" && key != "out_time_ms") || duration <= 0 {
		return 0, false
	}
	// ffmpeg reports both keys in microseconds.
	us, err := strconv.ParseFloat(value, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return math.Min(100, us/1e6/duration*100), true
}

func requireOutput(tool, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &job.ExternalProcessError{Tool: tool, Message: fmt.Sprintf("no output file produced at %s", path)}
		}
		return fmt.Errorf("stat output: %w", err)
	}
	if info.Size() == 0 {
		return &job.ExternalProcessError{Tool: tool, Message: fmt.Sprintf("empty output file at %s", path)}
	}
	return nil
}
