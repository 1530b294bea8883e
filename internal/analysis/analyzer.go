// Package analysis turns a transcript into flagged sections, a summary, tags and a
// suggested title using a language model.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/llm"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

const (
	quoteContextLimit = 6000
	excerptLimit      = 4000
	phraseWords       = 4
)

// Request is one analysis run.
type Request struct {
	Options            llm.Options
	Title              string
	Text               string
	Segments           []srt.Segment
	CustomInstructions string
	ReportPath         string
}

// ProgressFunc is called after each chunk with the number done and the total.
type ProgressFunc func(done, total int)

// Analyzer runs the prompt sequence against a generator.
type Analyzer struct {
	gen    llm.Generator
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyzer(gen llm.Generator, logger *slog.Logger) *Analyzer {
	return &Analyzer{gen: gen, logger: logger, now: time.Now}
}

type usage struct {
	tokens int
	cost   float64
}

func (u *usage) add(r llm.Response) {
	u.tokens += r.TokensUsed
	u.cost += r.EstimatedCost
}

// Analyze identifies sections chunk by chunk, streaming them into the report, then
// derives description, tags and a title from the result. Section identification
// failures abort the run; the follow-up prompts are best effort.
func (a *Analyzer) Analyze(ctx context.Context, req Request, progress ProgressFunc) (*job.Analysis, error) {
	chunks := Split(req.Segments, req.Text, ChunkWindow)
	if len(chunks) == 0 {
		return nil, job.ErrMissingTranscript
	}

	report, err := createReport(req.ReportPath, req.Title, req.Options.Model, a.now())
	if err != nil {
		return nil, err
	}
	defer report.Close()

	var (
		u        usage
		sections []job.Section
	)
	for i, chunk := range chunks {
		found, err := a.identify(ctx, req, chunk, &u)
		if err != nil {
			return nil, fmt.Errorf("analyze chunk %d/%d: %w", chunk.Number, len(chunks), err)
		}
		for _, s := range found {
			if err := report.section(s); err != nil {
				a.logger.Warn("Failed to write report section", slog.Any("error", err))
			}
		}
		sections = append(sections, found...)
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	result := &job.Analysis{
		ReportPath: req.ReportPath,
		Provider:   req.Options.Provider,
		Model:      req.Options.Model,
		Sections:   sections,
	}
	result.Description = a.summarize(ctx, req, sections, &u)
	result.People, result.Topics = a.extractTags(ctx, req, sections, &u)
	result.SuggestedTitle = a.suggestTitle(ctx, req, result, &u)
	result.TokensUsed, result.EstimatedCost = u.tokens, u.cost

	if err := report.summary(result.Description, result.People, result.Topics); err != nil {
		a.logger.Warn("Failed to write report summary", slog.Any("error", err))
	}

	a.logger.Info("Analysis finished",
		slog.Int("chunks", len(chunks)),
		slog.Int("sections", len(sections)),
		slog.Int("tokens", u.tokens),
		slog.Float64("estimated_cost", u.cost),
	)
	return result, nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, opts llm.Options, u *usage) (string, error) {
	resp, err := a.gen.Generate(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	u.add(resp)
	return resp.Text, nil
}

func (a *Analyzer) identify(ctx context.Context, req Request, chunk Chunk, u *usage) ([]job.Section, error) {
	titleContext := ""
	if req.Title != "" {
		titleContext = "Video title: " + req.Title
	}
	custom := ""
	if req.CustomInstructions != "" {
		custom = "ADDITIONAL INSTRUCTIONS:\n" + req.CustomInstructions
	}

	reply, err := a.generate(ctx, render(sectionPrompt, map[string]string{
		"title_context":       titleContext,
		"custom_instructions": custom,
		"chunk_num":           strconv.Itoa(chunk.Number),
		"chunk_text":          chunk.Text,
	}), req.Options, u)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Sections []rawSection `json:"sections"`
	}
	if err := decodeJSON(reply, &parsed); err != nil {
		a.logger.Warn("Unparseable section reply, skipping chunk",
			slog.Int("chunk", chunk.Number),
			slog.Any("error", err),
		)
		return nil, nil
	}

	out := make([]job.Section, 0, len(parsed.Sections))
	for _, raw := range parsed.Sections {
		out = append(out, a.resolveSection(ctx, req, chunk, raw, u))
	}
	return out, nil
}

// resolveSection anchors a model section to segment times and gathers its quotes.
func (a *Analyzer) resolveSection(ctx context.Context, req Request, chunk Chunk, raw rawSection, u *usage) job.Section {
	first, last := 0, len(chunk.Segments)-1
	if i := locate(chunk.Segments, raw.StartPhrase, 0); i >= 0 {
		first = i
	}
	if i := locate(chunk.Segments, raw.EndPhrase, first); i >= 0 {
		last = i
	}

	section := job.Section{
		Category:    normalizeCategory(raw.Category),
		Description: strings.TrimSpace(raw.Description),
		StartTime:   srt.Clock(chunk.Start),
	}
	var span []srt.Segment
	if last >= first && len(chunk.Segments) > 0 {
		span = chunk.Segments[first : last+1]
		section.StartTime = srt.Clock(span[0].Start)
		section.EndTime = srt.Clock(span[len(span)-1].End)
	}

	if section.Category != CategoryRoutine && len(span) > 0 {
		section.Quotes = a.extractQuotes(ctx, req, section, span, u)
	}
	if len(section.Quotes) == 0 && strings.TrimSpace(raw.Quote) != "" {
		section.Quotes = []job.Quote{{Timestamp: section.StartTime, Text: strings.TrimSpace(raw.Quote)}}
	}
	return section
}

func (a *Analyzer) extractQuotes(ctx context.Context, req Request, s job.Section, span []srt.Segment, u *usage) []job.Quote {
	text := Timestamped(span)
	if len(text) > quoteContextLimit {
		text = text[:quoteContextLimit]
	}

	reply, err := a.generate(ctx, render(quotePrompt, map[string]string{
		"category":         s.Category,
		"description":      s.Description,
		"timestamped_text": text,
	}), req.Options, u)
	if err != nil {
		a.logger.Warn("Quote extraction failed", slog.String("section", s.StartTime), slog.Any("error", err))
		return nil
	}

	var parsed struct {
		Quotes []job.Quote `json:"quotes"`
	}
	if err := decodeJSON(reply, &parsed); err != nil {
		a.logger.Warn("Unparseable quote reply", slog.String("section", s.StartTime), slog.Any("error", err))
		return nil
	}

	out := parsed.Quotes[:0]
	for _, q := range parsed.Quotes {
		if strings.TrimSpace(q.Text) != "" {
			q.Timestamp = strings.Trim(q.Timestamp, "[] ")
			out = append(out, q)
		}
	}
	return out
}

func (a *Analyzer) summarize(ctx context.Context, req Request, sections []job.Section, u *usage) string {
	if len(sections) == 0 {
		return ""
	}
	titleContext := ""
	if req.Title != "" {
		titleContext = "\nVideo title: " + req.Title
	}

	reply, err := a.generate(ctx, render(summaryPrompt, map[string]string{
		"title_context":    titleContext,
		"sections_summary": sectionTimeline(sections),
	}), req.Options, u)
	if err != nil {
		a.logger.Warn("Summary generation failed", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(reply)
}

func (a *Analyzer) extractTags(ctx context.Context, req Request, sections []job.Section, u *usage) ([]string, []string) {
	excerpt := req.Text
	if excerpt == "" {
		excerpt = srt.PlainText(req.Segments)
	}
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit]
	}

	reply, err := a.generate(ctx, render(tagsPrompt, map[string]string{
		"sections_context": sectionTimeline(sections),
		"excerpt":          excerpt,
	}), req.Options, u)
	if err != nil {
		a.logger.Warn("Tag extraction failed", slog.Any("error", err))
		return nil, nil
	}

	var parsed struct {
		People []string `json:"people"`
		Topics []string `json:"topics"`
	}
	if err := decodeJSON(reply, &parsed); err != nil {
		a.logger.Warn("Unparseable tag reply", slog.Any("error", err))
		return nil, nil
	}
	return cleanTags(parsed.People), cleanTags(parsed.Topics)
}

func (a *Analyzer) suggestTitle(ctx context.Context, req Request, r *job.Analysis, u *usage) string {
	if r.Description == "" && len(r.People) == 0 && len(r.Topics) == 0 {
		return ""
	}

	reply, err := a.generate(ctx, render(titlePrompt, map[string]string{
		"current_title": req.Title,
		"description":   r.Description,
		"people_tags":   strings.Join(r.People, ", "),
		"topic_tags":    strings.Join(r.Topics, ", "),
	}), req.Options, u)
	if err != nil {
		a.logger.Warn("Title suggestion failed", slog.Any("error", err))
		return ""
	}
	return SanitizeTitle(reply)
}

func sectionTimeline(sections []job.Section) string {
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "[%s] %s: %s\n", s.StartTime, s.Category, s.Description)
	}
	return b.String()
}

// locate returns the index of the first segment at or after from whose text
// contains the leading words of phrase, or -1.
func locate(segments []srt.Segment, phrase string, from int) int {
	words := strings.Fields(normalizeText(phrase))
	if len(words) == 0 {
		return -1
	}
	if len(words) > phraseWords {
		words = words[:phraseWords]
	}
	needle := strings.Join(words, " ")

	for i := from; i < len(segments); i++ {
		if strings.Contains(normalizeText(segments[i].Text), needle) {
			return i
		}
	}
	// phrases often straddle two segments
	for i := from; i+1 < len(segments); i++ {
		joined := normalizeText(segments[i].Text + " " + segments[i+1].Text)
		if strings.Contains(joined, needle) {
			return i
		}
	}
	return -1
}

func normalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
