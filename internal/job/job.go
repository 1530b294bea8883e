package job

import (
	"slices"
	"time"
)

// Status is the externally visible lifecycle state of a job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusProcessing   Status = "processing"
	StatusNormalizing  Status = "normalizing"
	StatusFinalizing   Status = "finalizing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether no further phase will run for the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode selects which phases a job passes through.
type Mode string

const (
	ModeFull               Mode = "full"
	ModeTranscribeOnly     Mode = "transcribe-only"
	ModeAnalysisOnly       Mode = "analysis-only"
	ModeProcessOnly        Mode = "process-only"
	ModeNormalizeAudio     Mode = "normalize-audio"
	ModeDownloadAndProcess Mode = "download-and-process"
)

var modes = []Mode{
	ModeFull, ModeTranscribeOnly, ModeAnalysisOnly,
	ModeProcessOnly, ModeNormalizeAudio, ModeDownloadAndProcess,
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return slices.Contains(modes, m)
}

// Phase is one unit of work in a job's pipeline.
type Phase string

const (
	PhaseDownload       Phase = "download"
	PhaseTranscribe     Phase = "transcribe"
	PhaseAnalyze        Phase = "analyze"
	PhaseProcess        Phase = "process"
	PhaseNormalizeAudio Phase = "normalize-audio"
	PhaseFinalize       Phase = "finalize"
)

// Status is the record status shown while the phase runs.
func (p Phase) Status() Status {
	switch p {
	case PhaseDownload:
		return StatusDownloading
	case PhaseTranscribe:
		return StatusTranscribing
	case PhaseAnalyze:
		return StatusAnalyzing
	case PhaseProcess:
		return StatusProcessing
	case PhaseNormalizeAudio:
		return StatusNormalizing
	case PhaseFinalize:
		return StatusFinalizing
	default:
		return StatusPending
	}
}

// Label is the human readable currentPhase text.
func (p Phase) Label() string {
	switch p {
	case PhaseDownload:
		return "Downloading video"
	case PhaseTranscribe:
		return "Transcribing audio"
	case PhaseAnalyze:
		return "Analyzing transcript"
	case PhaseProcess:
		return "Fixing aspect ratio"
	case PhaseNormalizeAudio:
		return "Normalizing audio"
	case PhaseFinalize:
		return "Saving results"
	default:
		return string(p)
	}
}

// IndeterminateProgress is reported when a phase cannot estimate completion.
const IndeterminateProgress = -1

// PhaseTiming records when a phase started and ended.
type PhaseTiming struct {
	Phase     Phase      `json:"phase"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Job is the record clients observe.
type Job struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	Progress     int           `json:"progress"`
	CurrentPhase string        `json:"currentPhase"`
	Mode         Mode          `json:"mode"`
	Input        string        `json:"input"`
	MediaID      string        `json:"mediaId,omitempty"`
	VideoPath    string        `json:"videoPath,omitempty"`
	AudioPath    string        `json:"audioPath,omitempty"`
	AnalysisPath string        `json:"analysisPath,omitempty"`
	Title        string        `json:"title,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Timing       []PhaseTiming `json:"timing,omitempty"`
	Error        string        `json:"error,omitempty"`
	Message      string        `json:"message,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	DurationMs   int64         `json:"durationMs,omitempty"`
}

// Clone returns a deep copy safe to hand outside the store.
func (j Job) Clone() Job {
	j.Tags = slices.Clone(j.Tags)
	j.Timing = slices.Clone(j.Timing)
	for i, t := range j.Timing {
		if t.EndedAt != nil {
			end := *t.EndedAt
			j.Timing[i].EndedAt = &end
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	return j
}

// diff returns the json names of fields that differ between a and b, with b's values.
func diff(a, b Job) map[string]any {
	changes := map[string]any{}
	if a.Status != b.Status {
		changes["status"] = b.Status
	}
	if a.Progress != b.Progress {
		changes["progress"] = b.Progress
	}
	if a.CurrentPhase != b.CurrentPhase {
		changes["currentPhase"] = b.CurrentPhase
	}
	if a.MediaID != b.MediaID {
		changes["mediaId"] = b.MediaID
	}
	if a.VideoPath != b.VideoPath {
		changes["videoPath"] = b.VideoPath
	}
	if a.AudioPath != b.AudioPath {
		changes["audioPath"] = b.AudioPath
	}
	if a.AnalysisPath != b.AnalysisPath {
		changes["analysisPath"] = b.AnalysisPath
	}
	if a.Title != b.Title {
		changes["title"] = b.Title
	}
	if !slices.Equal(a.Tags, b.Tags) {
		changes["tags"] = b.Tags
	}
	if !slices.EqualFunc(a.Timing, b.Timing, timingEqual) {
		changes["timing"] = b.Timing
	}
	if a.Error != b.Error {
		changes["error"] = b.Error
	}
	if a.Message != b.Message {
		changes["message"] = b.Message
	}
	if (a.CompletedAt == nil) != (b.CompletedAt == nil) {
		changes["completedAt"] = b.CompletedAt
	}
	if a.DurationMs != b.DurationMs {
		changes["durationMs"] = b.DurationMs
	}
	return changes
}

func timingEqual(a, b PhaseTiming) bool {
	if a.Phase != b.Phase || !a.StartedAt.Equal(b.StartedAt) {
		return false
	}
	if a.EndedAt == nil || b.EndedAt == nil {
		return a.EndedAt == b.EndedAt
	}
	return a.EndedAt.Equal(*b.EndedAt)
}
