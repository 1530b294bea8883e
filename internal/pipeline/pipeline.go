// Package pipeline holds the phase handlers a job runs through. Handlers read the
// job's phase state, report progress on a channel and return a typed result that
// the scheduler applies to the state and the job record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/mediaflow/internal/acquire"
	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/bridge"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/media"
)

// Update is one progress report from a running handler. Percent may be
// job.IndeterminateProgress.
type Update struct {
	Percent int
	Message string
}

// Input is what a handler receives for one phase run. State must not be modified.
type Input struct {
	JobID    string
	State    *job.State
	Progress chan<- Update
	// SetAudioPath records a temp audio file so a deleted job can clean it up.
	SetAudioPath func(path string)
}

// Report sends a progress update unless ctx is done.
func (in Input) Report(ctx context.Context, percent int, message string) {
	if in.Progress == nil {
		return
	}
	select {
	case in.Progress <- Update{Percent: percent, Message: message}:
	case <-ctx.Done():
	}
}

// HandlerFunc runs one phase.
type HandlerFunc func(ctx context.Context, in Input) (job.Result, error)

type Downloader interface {
	Download(ctx context.Context, url, dir string, progress func(float64)) (acquire.Result, error)
}

type MediaTool interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
	FixAspectRatio(ctx context.Context, inputPath string, progress media.ProgressFunc) (string, error)
	NormalizeAudio(ctx context.Context, inputPath string, progress media.ProgressFunc) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, model, language string, onProgress func(bridge.Progress)) (bridge.Transcription, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*job.Analysis, error)
}

// Library is the subset of the media library the handlers use.
type Library interface {
	ActiveClipFolder(ctx context.Context) (string, error)
	Get(ctx context.Context, id string) (*library.Item, error)
	FindByPath(ctx context.Context, path string) (*library.Item, error)
	Import(ctx context.Context, path string) (*library.Item, error)
	CreateMinimal(ctx context.Context, path, title string) (*library.Item, error)
	UpdatePath(ctx context.Context, id, path string) error
	DeleteAIArtifacts(ctx context.Context, id string) error
	SaveTranscript(ctx context.Context, t library.Transcript) error
	SaveAnalysis(ctx context.Context, a library.Analysis) error
	ReplaceSections(ctx context.Context, mediaID string, sections []library.Section) error
	SetDescription(ctx context.Context, id, description string) error
	SetSuggestedTitle(ctx context.Context, id, title string) error
	AddTags(ctx context.Context, mediaID, tagType, source string, names []string) error
}

// KeyStore supplies configured provider API keys.
type KeyStore interface {
	APIKey(provider string) string
}

// StaticKeys is a KeyStore backed by a map of provider name to key.
type StaticKeys map[string]string

func (k StaticKeys) APIKey(provider string) string { return k[provider] }

// Archiver copies finished artifacts to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, mediaID, name string, data []byte, contentType string) error
}

type Config struct {
	DownloadDir     string
	TempDir         string
	WhisperModel    string
	Language        string
	DefaultProvider string
	DefaultModel    string
	OllamaEndpoint  string
}

// Deps are the collaborators handlers call. Archiver may be nil.
type Deps struct {
	Downloader  Downloader
	Media       MediaTool
	Transcriber Transcriber
	Analyzer    Analyzer
	Library     Library
	Keys        KeyStore
	Archiver    Archiver
}

// Phases builds the handler for every phase.
type Phases struct {
	Deps
	cfg    Config
	logger *slog.Logger
}

func NewPhases(deps Deps, cfg Config, logger *slog.Logger) *Phases {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if deps.Keys == nil {
		deps.Keys = StaticKeys{}
	}
	return &Phases{Deps: deps, cfg: cfg, logger: logger}
}

// Handlers returns the handler table keyed by phase.
func (p *Phases) Handlers() map[job.Phase]HandlerFunc {
	return map[job.Phase]HandlerFunc{
		job.PhaseDownload:       p.Download,
		job.PhaseTranscribe:     p.Transcribe,
		job.PhaseAnalyze:        p.Analyze,
		job.PhaseProcess:        p.Process,
		job.PhaseNormalizeAudio: p.NormalizeAudio,
		job.PhaseFinalize:       p.Finalize,
	}
}

// downloadDir picks the active library clip folder, then the configured
// directory, then ~/Downloads/clips.
func (p *Phases) downloadDir(ctx context.Context) (string, error) {
	if p.Library != nil {
		folder, err := p.Library.ActiveClipFolder(ctx)
		if err != nil {
			p.logger.Warn("Failed to read active library", slog.Any("error", err))
		} else if folder != "" {
			return folder, nil
		}
	}
	if p.cfg.DownloadDir != "" {
		return p.cfg.DownloadDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve download dir: %w", err)
	}
	return filepath.Join(home, "Downloads", "clips"), nil
}

// scale maps a 0-100 reading into the [lo, hi] band.
func scale(pct float64, lo, hi int) int {
	pct = min(max(pct, 0), 100)
	return lo + int(pct*float64(hi-lo)/100)
}
