package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cuongbtq/mediaflow/internal/bridge"
	"github.com/cuongbtq/mediaflow/internal/job"
)

// Transcribe extracts a 16 kHz mono WAV and runs the speech engine over it.
// Analysis-only jobs return the transcript they were submitted with.
func (p *Phases) Transcribe(ctx context.Context, in Input) (job.Result, error) {
	req := in.State.Request
	if req.Mode == job.ModeAnalysisOnly {
		return &job.Transcript{Text: req.TranscriptText, SRT: req.TranscriptSRT, Language: req.Language}, nil
	}

	videoPath := in.State.VideoPath
	if videoPath == "" {
		return nil, fmt.Errorf("%w: no media file to transcribe", job.ErrInvalidRequest)
	}

	audioPath := filepath.Join(p.cfg.TempDir, "mediaflow-"+in.JobID+".wav")
	if in.SetAudioPath != nil {
		in.SetAudioPath(audioPath)
	}
	defer removeQuietly(p.logger, audioPath)

	in.Report(ctx, 5, "Extracting audio")
	if err := p.Media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, err
	}

	model := req.WhisperModel
	if model == "" {
		model = p.cfg.WhisperModel
	}
	language := req.Language
	if language == "" {
		language = p.cfg.Language
	}

	in.Report(ctx, 10, "Transcribing audio")
	res, err := p.Transcriber.Transcribe(ctx, audioPath, model, language, func(pr bridge.Progress) {
		msg := pr.Message
		if msg == "" {
			msg = "Transcribing audio"
		}
		switch pr.Source {
		case bridge.SourceEngine:
			in.Report(ctx, scale(pr.Percent, 30, 60), msg)
		default:
			in.Report(ctx, scale(pr.Percent, 10, 90), msg)
		}
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Transcription finished",
		slog.String("job_id", in.JobID),
		slog.String("language", res.Language),
		slog.Int("segments", len(res.Segments)),
	)
	return &job.Transcript{Text: res.Text, SRT: res.SRT, Language: res.Language}, nil
}
