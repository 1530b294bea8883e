package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/llm"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

// Analyze runs the language model analysis over the transcript in phase state.
func (p *Phases) Analyze(ctx context.Context, in Input) (job.Result, error) {
	st := in.State
	req := st.Request

	title := st.Title
	if title == "" && st.MediaID != "" && p.Library != nil {
		if item, err := p.Library.Get(ctx, st.MediaID); err == nil {
			title = item.Title
		}
	}

	provider := req.AIProvider
	if provider == "" {
		provider = p.cfg.DefaultProvider
	}
	model := req.AIModel
	if model == "" {
		model = p.cfg.DefaultModel
	}
	model = llm.NormalizeModel(provider, model)

	opts := llm.Options{Provider: provider, Model: model, Endpoint: req.Endpoint}
	if llm.RequiresAPIKey(provider) {
		opts.APIKey = req.APIKey
		if opts.APIKey == "" {
			opts.APIKey = p.Keys.APIKey(provider)
		}
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w for provider %s", job.ErrMissingAPIKey, provider)
		}
	} else if opts.Endpoint == "" {
		opts.Endpoint = p.cfg.OllamaEndpoint
	}

	var text, srtText string
	if st.Transcript != nil {
		text, srtText = st.Transcript.Text, st.Transcript.SRT
	}
	if text == "" && srtText == "" {
		return nil, job.ErrMissingTranscript
	}

	if st.MediaID != "" && p.Library != nil {
		if err := p.Library.DeleteAIArtifacts(ctx, st.MediaID); err != nil {
			p.logger.Warn("Failed to clear previous analysis",
				slog.String("media_id", st.MediaID),
				slog.Any("error", fmt.Errorf("%w: %w", job.ErrPersistence, err)),
			)
		}
	}

	segments := srt.Parse(srtText)
	if text == "" {
		text = srt.PlainText(segments)
	}

	chunks := len(analysis.Split(segments, text, analysis.ChunkWindow))
	if chunks <= 1 {
		in.Report(ctx, job.IndeterminateProgress, "Analyzing transcript")
	} else {
		in.Report(ctx, 60, "Analyzing transcript")
	}

	result, err := p.Analyzer.Analyze(ctx, analysis.Request{
		Options:            opts,
		Title:              title,
		Text:               text,
		Segments:           segments,
		CustomInstructions: req.CustomInstructions,
		ReportPath:         p.reportPath(in.JobID, req.OutputDir, title),
	}, func(done, total int) {
		if total > 1 {
			in.Report(ctx, 60+35*done/total, fmt.Sprintf("Analyzed chunk %d of %d", done, total))
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reportPath writes next to the requested output dir, else into the temp dir
// where finalize removes it after persisting.
func (p *Phases) reportPath(jobID, outputDir, title string) string {
	if outputDir != "" {
		name := title
		if name == "" {
			name = jobID
		}
		return filepath.Join(outputDir, name+"_analysis.txt")
	}
	return filepath.Join(p.cfg.TempDir, "mediaflow-"+jobID+"-analysis.txt")
}

func (p *Phases) isTempReport(path string) bool {
	return filepath.Dir(path) == filepath.Clean(p.cfg.TempDir)
}

func removeQuietly(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove file", slog.String("path", path), slog.Any("error", err))
	}
}
