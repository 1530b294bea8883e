package job

import (
	"slices"
	"sync"
	"time"
)

// Store keeps job records in memory. Only the scheduler writes to it.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create inserts a pending record for req.
func (s *Store) Create(id string, req Request, now time.Time) Job {
	j := &Job{
		ID:           id,
		Status:       StatusPending,
		CurrentPhase: "Queued",
		Mode:         req.Mode,
		Input:        req.Input,
		MediaID:      req.MediaID,
		Title:        req.Title,
		CreatedAt:    now,
	}
	if req.InputType == InputFile {
		j.VideoPath = req.Input
		if j.Title == "" && req.Input != "" {
			j.Title = TitleFromPath(req.Input)
		}
	}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	return j.Clone()
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.Clone(), true
}

// List returns copies of every record, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Update applies fn to the record and returns the new copy plus the changed fields.
// ok is false when the record no longer exists.
func (s *Store) Update(id string, fn func(*Job)) (Job, map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, nil, false
	}

	before := j.Clone()
	fn(j)
	// changes outlive the lock in published events; they must not alias the record
	return j.Clone(), diff(before, j.Clone()), true
}

// Delete removes the record and returns its last state.
func (s *Store) Delete(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	delete(s.jobs, id)
	return j.Clone(), true
}
