package bridge

import (
	"context"
	"encoding/json"
	"math"

	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/job"
)

type analysisResult struct {
	SectionsCount  int               `json:"sections_count"`
	Sections       []analysisSection `json:"sections"`
	Description    string            `json:"description"`
	SuggestedTitle string            `json:"suggested_title"`
	People         []string          `json:"people"`
	Topics         []string          `json:"topics"`
	TokensUsed     int               `json:"tokens_used"`
}

type analysisSection struct {
	Category    string      `json:"category"`
	Description string      `json:"description"`
	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`
	Quotes      []job.Quote `json:"quotes"`
}

// Analyze hands the transcript to the helper's analyze command. It satisfies
// the same contract as analysis.Analyzer; protocol progress is reported as
// done out of 100. The helper writes the report to req.ReportPath itself.
func (c *Client) Analyze(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*job.Analysis, error) {
	var onProgress func(Progress)
	if progress != nil {
		onProgress = func(p Progress) {
			if p.Source != SourceProtocol || p.Percent < 0 {
				return
			}
			progress(int(math.Min(p.Percent, 100)), 100)
		}
	}

	data, err := c.Call(ctx, Request{
		Command:            CommandAnalyze,
		Provider:           req.Options.Provider,
		OllamaEndpoint:     req.Options.Endpoint,
		AIModel:            req.Options.Model,
		APIKey:             req.Options.APIKey,
		TranscriptText:     req.Text,
		Segments:           req.Segments,
		OutputFile:         req.ReportPath,
		CustomInstructions: req.CustomInstructions,
		Title:              req.Title,
	}, onProgress)
	if err != nil {
		return nil, err
	}

	var out analysisResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &job.ExternalProcessError{Tool: toolName, Message: "malformed analyze result", Err: err}
	}

	result := &job.Analysis{
		ReportPath:     req.ReportPath,
		Provider:       req.Options.Provider,
		Model:          req.Options.Model,
		Description:    out.Description,
		SuggestedTitle: analysis.SanitizeTitle(out.SuggestedTitle),
		People:         out.People,
		Topics:         out.Topics,
		TokensUsed:     out.TokensUsed,
	}
	for _, s := range out.Sections {
		result.Sections = append(result.Sections, job.Section{
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			Category:    s.Category,
			Description: s.Description,
			Quotes:      s.Quotes,
		})
	}
	return result, nil
}
