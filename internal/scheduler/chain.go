package scheduler

import "github.com/cuongbtq/mediaflow/internal/job"

// chain is the sequence of phases one dispatch runs for a job.
type chain struct {
	steps []job.Phase
	// budgeted chains hold a concurrency slot while they run.
	budgeted bool
	// next is the phase queued after the chain, or "" when the job is done.
	next job.Phase
}

// chainFor is the dispatch table: entry phase and mode decide the steps and the
// phase that follows.
func chainFor(entry job.Phase, mode job.Mode) chain {
	afterTranscribe := job.PhaseAnalyze
	if mode == job.ModeTranscribeOnly {
		afterTranscribe = job.PhaseFinalize
	}

	switch entry {
	case job.PhaseDownload:
		if mode == job.ModeDownloadAndProcess {
			return chain{steps: []job.Phase{job.PhaseDownload, job.PhaseProcess}, budgeted: true, next: job.PhaseFinalize}
		}
		return chain{steps: []job.Phase{job.PhaseDownload, job.PhaseTranscribe}, budgeted: true, next: afterTranscribe}
	case job.PhaseTranscribe:
		return chain{steps: []job.Phase{job.PhaseTranscribe}, budgeted: true, next: afterTranscribe}
	case job.PhaseFinalize:
		return chain{steps: []job.Phase{job.PhaseFinalize}}
	default:
		return chain{steps: []job.Phase{entry}, budgeted: true, next: job.PhaseFinalize}
	}
}
