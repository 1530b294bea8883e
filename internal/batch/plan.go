// Package batch plans unattended work over library items and hands it to the
// external batch queue, tracking per-job status for progress queries.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
)

// Options select the items and the work a batch performs.
type Options struct {
	MediaIDs           []string `json:"mediaIds"`
	Transcribe         bool     `json:"transcribe"`
	Analyze            bool     `json:"analyze"`
	Force              bool     `json:"force"`
	WhisperModel       string   `json:"whisperModel,omitempty"`
	Language           string   `json:"language,omitempty"`
	AIProvider         string   `json:"aiProvider,omitempty"`
	AIModel            string   `json:"aiModel,omitempty"`
	CustomInstructions string   `json:"customInstructions,omitempty"`
}

func (o Options) Validate() error {
	if len(o.MediaIDs) == 0 {
		return fmt.Errorf("%w: mediaIds is required", job.ErrInvalidRequest)
	}
	if !o.Transcribe && !o.Analyze {
		return fmt.Errorf("%w: nothing to do, enable transcribe or analyze", job.ErrInvalidRequest)
	}
	return nil
}

// Action is the planned work for one item.
type Action string

const (
	ActionSkip       Action = "skip"
	ActionTranscribe Action = "transcribe"
	ActionAnalyze    Action = "analyze"
	ActionBoth       Action = "transcribe+analyze"
)

// Task is one queued unit of batch work.
type Task struct {
	JobID   string      `json:"jobId"`
	BatchID string      `json:"batchId"`
	MediaID string      `json:"mediaId"`
	Action  Action      `json:"action"`
	Request job.Request `json:"request"`
}

// MediaSource reads persisted item state. *library.Store satisfies it.
type MediaSource interface {
	State(ctx context.Context, mediaID string) (*library.MediaState, error)
	Transcript(ctx context.Context, mediaID string) (*library.Transcript, error)
}

// PlanItem decides the work for one item from what is already stored.
func PlanItem(state *library.MediaState, transcript *library.Transcript, opts Options) (Action, job.Request) {
	needTranscript := opts.Transcribe && (!state.HasTranscript || opts.Force)
	needAnalysis := opts.Analyze && (!state.HasAnalysis || opts.Force)

	req := job.Request{
		Input:              state.Item.Path,
		InputType:          job.InputFile,
		MediaID:            state.Item.ID,
		Title:              state.Item.Title,
		WhisperModel:       opts.WhisperModel,
		Language:           opts.Language,
		AIProvider:         opts.AIProvider,
		AIModel:            opts.AIModel,
		CustomInstructions: opts.CustomInstructions,
	}

	switch {
	case needAnalysis && (needTranscript || transcript == nil):
		// analysis without a stored transcript has to transcribe first
		req.Mode = job.ModeFull
		return ActionBoth, req
	case needAnalysis:
		req.Mode = job.ModeAnalysisOnly
		req.TranscriptText = transcript.Text
		req.TranscriptSRT = transcript.SRT
		return ActionAnalyze, req
	case needTranscript:
		req.Mode = job.ModeTranscribeOnly
		return ActionTranscribe, req
	default:
		return ActionSkip, req
	}
}

// Plan builds tasks for every item that needs work. Unknown items and items
// with nothing to do are returned as skipped.
func Plan(ctx context.Context, src MediaSource, batchID string, opts Options, newID func() string) ([]Task, []string, error) {
	if newID == nil {
		newID = uuid.NewString
	}

	var (
		tasks   []Task
		skipped []string
	)
	for _, id := range opts.MediaIDs {
		state, err := src.State(ctx, id)
		if errors.Is(err, library.ErrMediaNotFound) {
			skipped = append(skipped, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("plan %s: %w", id, err)
		}

		var transcript *library.Transcript
		if state.HasTranscript {
			if transcript, err = src.Transcript(ctx, id); err != nil {
				return nil, nil, fmt.Errorf("plan %s: %w", id, err)
			}
		}

		action, req := PlanItem(state, transcript, opts)
		if action == ActionSkip {
			skipped = append(skipped, id)
			continue
		}
		tasks = append(tasks, Task{JobID: newID(), BatchID: batchID, MediaID: id, Action: action, Request: req})
	}
	return tasks, skipped, nil
}
