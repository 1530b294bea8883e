package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

const defaultSectionLength = 10.0

var completionMessages = map[job.Mode]string{
	job.ModeFull:               "Transcription and analysis complete",
	job.ModeTranscribeOnly:     "Transcription complete",
	job.ModeAnalysisOnly:       "Analysis complete",
	job.ModeProcessOnly:        "Aspect ratio fixed",
	job.ModeNormalizeAudio:     "Audio normalized",
	job.ModeDownloadAndProcess: "Downloaded and processed",
}

// CompletionMessage is the final message shown for a mode.
func CompletionMessage(m job.Mode) string {
	if msg, ok := completionMessages[m]; ok {
		return msg
	}
	return "Complete"
}

// Finalize persists everything the job produced. Storage failures are logged and
// never fail the job.
func (p *Phases) Finalize(ctx context.Context, in Input) (job.Result, error) {
	st := in.State
	in.Report(ctx, 95, "Saving results")

	hasTranscript := st.Transcript != nil && (st.Transcript.Text != "" || st.Transcript.SRT != "") &&
		st.Request.Mode != job.ModeAnalysisOnly
	hasAnalysis := st.Analysis != nil

	var mediaID string
	if p.Library != nil {
		mediaID = p.resolveMediaID(ctx, in.JobID, st, hasTranscript || hasAnalysis)
	}

	if mediaID != "" {
		if hasTranscript {
			p.persist("transcript", mediaID, p.Library.SaveTranscript(ctx, library.Transcript{
				MediaID:  mediaID,
				Text:     st.Transcript.Text,
				SRT:      st.Transcript.SRT,
				Language: st.Transcript.Language,
			}))
			p.archive(ctx, mediaID, "transcript.srt", []byte(st.Transcript.SRT), "application/x-subrip")
		}
		if hasAnalysis {
			p.persistAnalysis(ctx, mediaID, st.Analysis)
		}
	}

	if hasAnalysis && st.Analysis.ReportPath != "" && p.isTempReport(st.Analysis.ReportPath) {
		removeQuietly(p.logger, st.Analysis.ReportPath)
	}

	return &job.Completion{MediaID: mediaID, Message: CompletionMessage(st.Request.Mode)}, nil
}

// resolveMediaID tries, in order: the id already on the job, a library record at
// the video path, a fresh import, and finally a minimal record so results are not
// lost. The last step only runs when there is something to keep.
func (p *Phases) resolveMediaID(ctx context.Context, jobID string, st *job.State, needRecord bool) string {
	if st.MediaID != "" {
		return st.MediaID
	}
	if st.VideoPath == "" {
		return ""
	}

	if item, err := p.Library.FindByPath(ctx, st.VideoPath); err == nil {
		return item.ID
	} else if !errors.Is(err, library.ErrMediaNotFound) {
		p.logger.Warn("Library lookup failed", slog.String("path", st.VideoPath), slog.Any("error", err))
	}

	item, err := p.Library.Import(ctx, st.VideoPath)
	if err == nil {
		return item.ID
	}
	p.logger.Warn("Library import failed during finalize",
		slog.String("job_id", jobID),
		slog.String("path", st.VideoPath),
		slog.Any("error", fmt.Errorf("%w: %w", job.ErrImport, err)),
	)
	if !needRecord {
		return ""
	}

	item, err = p.Library.CreateMinimal(ctx, st.VideoPath, st.Title)
	if err != nil {
		p.logger.Error("Failed to create minimal library record",
			slog.String("job_id", jobID),
			slog.Any("error", fmt.Errorf("%w: %w", job.ErrPersistence, err)),
		)
		return ""
	}
	p.logger.Info("Created minimal library record",
		slog.String("job_id", jobID),
		slog.String("media_id", item.ID),
	)
	return item.ID
}

func (p *Phases) persistAnalysis(ctx context.Context, mediaID string, a *job.Analysis) {
	var report []byte
	if a.ReportPath != "" {
		data, err := os.ReadFile(a.ReportPath)
		if err != nil {
			p.logger.Warn("Failed to read analysis report", slog.String("path", a.ReportPath), slog.Any("error", err))
		}
		report = data
	}

	p.persist("analysis", mediaID, p.Library.SaveAnalysis(ctx, library.Analysis{
		MediaID:       mediaID,
		Provider:      a.Provider,
		Model:         a.Model,
		Report:        string(report),
		TokensUsed:    a.TokensUsed,
		EstimatedCost: a.EstimatedCost,
	}))
	p.persist("sections", mediaID, p.Library.ReplaceSections(ctx, mediaID, p.storedSections(a.Sections)))

	if a.Description != "" {
		p.persist("description", mediaID, p.Library.SetDescription(ctx, mediaID, a.Description))
	}
	if a.SuggestedTitle != "" {
		p.persist("suggested title", mediaID, p.Library.SetSuggestedTitle(ctx, mediaID, a.SuggestedTitle))
	}
	if people := FilterTags(a.People); len(people) > 0 {
		p.persist("people tags", mediaID, p.Library.AddTags(ctx, mediaID, library.TagPeople, library.SourceAI, people))
	}
	if topics := FilterTags(a.Topics); len(topics) > 0 {
		p.persist("topic tags", mediaID, p.Library.AddTags(ctx, mediaID, library.TagTopic, library.SourceAI, topics))
	}

	if len(report) > 0 {
		p.archive(ctx, mediaID, "analysis.txt", report, "text/plain; charset=utf-8")
	}
}

func (p *Phases) storedSections(sections []job.Section) []library.Section {
	out := make([]library.Section, 0, len(sections))
	for _, s := range sections {
		start, err := srt.ParseClock(s.StartTime)
		if err != nil {
			p.logger.Warn("Skipping section with bad start time", slog.String("start", s.StartTime))
			continue
		}
		end := start + defaultSectionLength
		if s.EndTime != "" {
			if v, err := srt.ParseClock(s.EndTime); err == nil && v > start {
				end = v
			}
		}
		out = append(out, library.Section{
			StartSeconds: start,
			EndSeconds:   end,
			Category:     s.Category,
			Description:  s.Description,
			Quotes:       s.Quotes,
		})
	}
	return out
}

var placeholderTags = map[string]bool{"n/a": true, "na": true, "none": true, "unknown": true}

// FilterTags drops blanks, placeholders and case-insensitive duplicates.
func FilterTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || placeholderTags[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func (p *Phases) persist(what, mediaID string, err error) {
	if err == nil {
		return
	}
	p.logger.Error("Failed to persist "+what,
		slog.String("media_id", mediaID),
		slog.Any("error", fmt.Errorf("%w: %w", job.ErrPersistence, err)),
	)
}

func (p *Phases) archive(ctx context.Context, mediaID, name string, data []byte, contentType string) {
	if p.Archiver == nil || len(data) == 0 {
		return
	}
	if err := p.Archiver.Archive(ctx, mediaID, name, data, contentType); err != nil {
		p.logger.Warn("Failed to archive artifact",
			slog.String("media_id", mediaID),
			slog.String("name", name),
			slog.Any("error", err),
		)
	}
}
