package job

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrJobNotFound is returned when the record was deleted or never existed
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRequest is returned when a submission cannot be scheduled
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrExternalProcess marks failures of yt-dlp, ffmpeg or the speech/analysis bridge
	ErrExternalProcess = errors.New("external process failed")

	// ErrMissingAPIKey is returned when a hosted AI provider has no key
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingTranscript is returned when analysis has nothing to analyze
	ErrMissingTranscript = errors.New("no transcript available for analysis")

	// ErrPersistence marks library write failures; callers log and continue
	ErrPersistence = errors.New("persistence failure")

	// ErrImport marks a failed library import; finalize falls back to a minimal record
	ErrImport = errors.New("import failure")
)

// ExternalProcessError carries the tool name, exit status and captured output of a failed run.
type ExternalProcessError struct {
	Tool     string
	ExitCode int
	Message  string
	Output   []string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	var b strings.Builder
	b.WriteString(e.Tool)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, ": process exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExternalProcessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalProcess}
	}
	return []error{ErrExternalProcess, e.Err}
}
