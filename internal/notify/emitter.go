package notify

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies notifications.
type EventType string

const (
	EventJobUpdated EventType = "job.updated"
	EventJobCreated EventType = "job.created"
	EventJobDeleted EventType = "job.deleted"
	EventJobRenamed EventType = "job.renamed"
)

// Event describes one job record mutation.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	JobID     string         `json:"jobId"`
	MediaID   string         `json:"mediaId,omitempty"`
	Changes   map[string]any `json:"changes,omitempty"`
}

// Emitter sequences events, keeps a bounded history and fans out to subscribers.
type Emitter struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers map[int]chan Event
	nextSub     int
	logger      *slog.Logger
}

// NewEmitter creates an emitter retaining at most maxEvents for Since.
func NewEmitter(maxEvents int, logger *slog.Logger) *Emitter {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Emitter{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]chan Event),
		logger:      logger,
	}
}

// Publish assigns sequence and timestamp, records the event and delivers it.
// Slow subscribers miss events rather than stall the scheduler.
func (e *Emitter) Publish(event Event) Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSeq++
	event.Seq = e.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.events = append(e.events, event)
	if len(e.events) > e.maxEvents {
		trim := len(e.events) - e.maxEvents
		e.events = append([]Event(nil), e.events[trim:]...)
	}

	for id, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			e.logger.Warn("Dropping event for slow subscriber",
				slog.Int("subscriber", id),
				slog.Int64("seq", event.Seq),
				slog.String("job_id", event.JobID),
			)
		}
	}

	return event
}

// Since returns retained events with sequence strictly greater than seq.
func (e *Emitter) Since(seq int64) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, 0, len(e.events))
	for _, event := range e.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a buffered listener. The returned cancel func closes the channel.
func (e *Emitter) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, buffer)
	e.subscribers[id] = ch
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subscribers, id)
			close(ch)
			e.mu.Unlock()
		})
	}
	return ch, cancel
}
