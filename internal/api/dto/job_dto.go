package dto

import (
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/srt"
)

type CreateJobRequest struct {
	Input              string `json:"input"`
	InputType          string `json:"inputType"`
	Mode               string `json:"mode"`
	MediaID            string `json:"mediaId"`
	Title              string `json:"title"`
	WhisperModel       string `json:"whisperModel"`
	Language           string `json:"language"`
	AIProvider         string `json:"aiProvider"`
	AIModel            string `json:"aiModel"`
	APIKey             string `json:"apiKey"`
	Endpoint           string `json:"endpoint"`
	CustomInstructions string `json:"customInstructions"`
	TranscriptText     string `json:"transcriptText"`
	TranscriptSRT      string `json:"transcriptSrt"`
	OutputDir          string `json:"outputDir"`
}

func (r CreateJobRequest) ToRequest() job.Request {
	return job.Request{
		Input:              r.Input,
		InputType:          job.InputType(r.InputType),
		Mode:               job.Mode(r.Mode),
		MediaID:            r.MediaID,
		Title:              r.Title,
		WhisperModel:       r.WhisperModel,
		Language:           r.Language,
		AIProvider:         r.AIProvider,
		AIModel:            r.AIModel,
		APIKey:             r.APIKey,
		Endpoint:           r.Endpoint,
		CustomInstructions: r.CustomInstructions,
		TranscriptText:     r.TranscriptText,
		TranscriptSRT:      r.TranscriptSRT,
		OutputDir:          r.OutputDir,
	}
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	Mode     string `form:"mode"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []job.Job `json:"jobs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type BatchProgressRequest struct {
	JobIDs []string `json:"jobIds" binding:"required"`
}

type StatsResponse struct {
	Active    int `json:"active"`
	Pending   int `json:"pending"`
	MaxActive int `json:"maxActive"`
}

type SectionDTO struct {
	StartTime   string      `json:"startTime"`
	EndTime     string      `json:"endTime"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Quotes      []job.Quote `json:"quotes"`
}

type TagDTO struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

type MediaResponse struct {
	ID             string       `json:"id"`
	Path           string       `json:"path"`
	Title          string       `json:"title"`
	UploadDate     string       `json:"uploadDate,omitempty"`
	Description    string       `json:"description,omitempty"`
	SuggestedTitle string       `json:"suggestedTitle,omitempty"`
	HasTranscript  bool         `json:"hasTranscript"`
	HasAnalysis    bool         `json:"hasAnalysis"`
	Sections       []SectionDTO `json:"sections"`
	Tags           []TagDTO     `json:"tags"`
}

func NewMediaResponse(state *library.MediaState, sections []library.Section, tags []library.Tag) MediaResponse {
	resp := MediaResponse{
		ID:             state.Item.ID,
		Path:           state.Item.Path,
		Title:          state.Item.Title,
		UploadDate:     state.Item.UploadDate,
		Description:    state.Item.Description,
		SuggestedTitle: state.Item.SuggestedTitle,
		HasTranscript:  state.HasTranscript,
		HasAnalysis:    state.HasAnalysis,
		Sections:       make([]SectionDTO, len(sections)),
		Tags:           make([]TagDTO, len(tags)),
	}
	for i, s := range sections {
		resp.Sections[i] = SectionDTO{
			StartTime:   srt.Clock(s.StartSeconds),
			EndTime:     srt.Clock(s.EndSeconds),
			Category:    s.Category,
			Description: s.Description,
			Quotes:      s.Quotes,
		}
	}
	for i, t := range tags {
		resp.Tags[i] = TagDTO{Name: t.Name, Type: t.Type, Source: t.Source}
	}
	return resp
}
