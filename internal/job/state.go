package job

// Result is the output of one phase handler. Implementations are closed to this package.
type Result interface {
	phase() Phase
}

// Acquisition is produced by the download phase.
type Acquisition struct {
	VideoPath string
	Title     string
	MediaID   string
}

// Transcript is produced by the transcribe phase.
type Transcript struct {
	Text     string
	SRT      string
	Language string
}

// Quote is a notable line inside a section.
type Quote struct {
	Timestamp    string `json:"timestamp"`
	Text         string `json:"text"`
	Significance string `json:"significance"`
}

// Section is a flagged span of the transcript. Times use "H:MM:SS" or "M:SS".
type Section struct {
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime,omitempty"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Quotes      []Quote `json:"quotes,omitempty"`
}

// Analysis is produced by the analyze phase.
type Analysis struct {
	ReportPath     string
	Provider       string
	Model          string
	Sections       []Section
	Description    string
	SuggestedTitle string
	People         []string
	Topics         []string
	TokensUsed     int
	EstimatedCost  float64
}

// Processed is produced by the process and normalize-audio phases.
type Processed struct {
	OriginalPath string
	OutputPath   string
	// MediaID is the library record that now points at OutputPath.
	MediaID string
}

// Renamed reports whether the output replaced the original under a new name.
func (p *Processed) Renamed() bool {
	return p.OutputPath != "" && p.OutputPath != p.OriginalPath
}

// Completion is produced by the finalize phase.
type Completion struct {
	MediaID string
	Message string
}

func (*Acquisition) phase() Phase { return PhaseDownload }
func (*Transcript) phase() Phase  { return PhaseTranscribe }
func (*Analysis) phase() Phase    { return PhaseAnalyze }
func (*Processed) phase() Phase   { return PhaseProcess }
func (*Completion) phase() Phase  { return PhaseFinalize }

// State travels with a job between phases. Request never changes; each result
// field is written once by the executor after the producing handler returns.
type State struct {
	Phase   Phase
	Request Request

	MediaID   string
	VideoPath string
	Title     string

	Acquisition *Acquisition
	Transcript  *Transcript
	Analysis    *Analysis
	Processed   *Processed
}

// NewState seeds phase state from a request.
func NewState(req Request) *State {
	s := &State{
		Phase:   req.InitialPhase(),
		Request: req,
		MediaID: req.MediaID,
		Title:   req.Title,
	}
	if req.InputType == InputFile {
		s.VideoPath = req.Input
	}
	if req.TranscriptText != "" || req.TranscriptSRT != "" {
		s.Transcript = &Transcript{Text: req.TranscriptText, SRT: req.TranscriptSRT, Language: req.Language}
	}
	return s
}

// Apply folds a handler result into the state.
func (s *State) Apply(r Result) {
	switch v := r.(type) {
	case *Acquisition:
		s.Acquisition = v
		s.VideoPath = v.VideoPath
		if v.Title != "" {
			s.Title = v.Title
		}
		if v.MediaID != "" {
			s.MediaID = v.MediaID
		}
	case *Transcript:
		s.Transcript = v
	case *Analysis:
		s.Analysis = v
	case *Processed:
		s.Processed = v
		if v.OutputPath != "" {
			s.VideoPath = v.OutputPath
		}
		if s.MediaID == "" {
			s.MediaID = v.MediaID
		}
	case *Completion:
		if v.MediaID != "" {
			s.MediaID = v.MediaID
		}
	}
}
