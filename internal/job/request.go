package job

import (
	"fmt"
	"path/filepath"
	"strings"
)

// InputType tells whether Request.Input is a URL or a local path.
type InputType string

const (
	InputURL  InputType = "url"
	InputFile InputType = "file"
)

// Request is the immutable submission carried through every phase.
type Request struct {
	Input              string    `json:"input"`
	InputType          InputType `json:"inputType"`
	Mode               Mode      `json:"mode"`
	MediaID            string    `json:"mediaId,omitempty"`
	Title              string    `json:"title,omitempty"`
	WhisperModel       string    `json:"whisperModel,omitempty"`
	Language           string    `json:"language,omitempty"`
	AIProvider         string    `json:"aiProvider,omitempty"`
	AIModel            string    `json:"aiModel,omitempty"`
	APIKey             string    `json:"-"`
	Endpoint           string    `json:"endpoint,omitempty"`
	CustomInstructions string    `json:"customInstructions,omitempty"`
	TranscriptText     string    `json:"transcriptText,omitempty"`
	TranscriptSRT      string    `json:"transcriptSrt,omitempty"`
	OutputDir          string    `json:"outputDir,omitempty"`
}

// Normalize fills defaults that can be derived from the request itself.
func (r *Request) Normalize() {
	r.Input = strings.TrimSpace(r.Input)
	if r.Mode == "" {
		r.Mode = ModeFull
	}
	if r.InputType == "" {
		if strings.HasPrefix(r.Input, "http://") || strings.HasPrefix(r.Input, "https://") {
			r.InputType = InputURL
		} else {
			r.InputType = InputFile
		}
	}
}

// Validate rejects requests that no chain can serve.
func (r *Request) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.InputType != InputURL && r.InputType != InputFile {
		return fmt.Errorf("%w: unknown input type %q", ErrInvalidRequest, r.InputType)
	}
	if r.Input == "" && !(r.Mode == ModeAnalysisOnly && r.MediaID != "") {
		return fmt.Errorf("%w: input is required", ErrInvalidRequest)
	}
	if r.InputType == InputURL && (r.Mode == ModeProcessOnly || r.Mode == ModeNormalizeAudio) {
		return fmt.Errorf("%w: mode %s needs a local file", ErrInvalidRequest, r.Mode)
	}
	return nil
}

// InitialPhase is the first phase queued for a new job.
func (r *Request) InitialPhase() Phase {
	switch r.Mode {
	case ModeAnalysisOnly:
		return PhaseAnalyze
	case ModeProcessOnly:
		return PhaseProcess
	case ModeNormalizeAudio:
		return PhaseNormalizeAudio
	case ModeDownloadAndProcess:
		return PhaseDownload
	}
	if r.InputType == InputURL {
		return PhaseDownload
	}
	return PhaseTranscribe
}

// TitleFromPath derives a display title from a file name.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
