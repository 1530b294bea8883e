package scheduler

import (
	"slices"

	"github.com/cuongbtq/mediaflow/internal/job"
)

// entry is a job waiting for its next phase.
type entry struct {
	jobID string
	state *job.State
}

// queue holds at most one entry per job, in arrival order.
type queue struct {
	entries []entry
}

func (q *queue) push(e entry) {
	q.remove(e.jobID)
	q.entries = append(q.entries, e)
}

func (q *queue) remove(jobID string) bool {
	n := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(e entry) bool { return e.jobID == jobID })
	return len(q.entries) != n
}

// take removes and returns the first entry matching one of phases.
func (q *queue) take(phases ...job.Phase) (entry, bool) {
	for i, e := range q.entries {
		if slices.Contains(phases, e.state.Phase) {
			q.entries = slices.Delete(q.entries, i, i+1)
			return e, true
		}
	}
	return entry{}, false
}

func (q *queue) len() int { return len(q.entries) }
