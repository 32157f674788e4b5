package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source names the component that emitted an event.
type Source string

const (
	SourceSession  Source = "session"
	SourceRecorder Source = "recorder"
	SourceUpload   Source = "upload"
	SourceJobs     Source = "jobs"
)

// Type classifies an event within its source.
type Type string

const (
	TypeState    Type = "state"
	TypeTick     Type = "tick"
	TypeProgress Type = "progress"
	TypeJob      Type = "job"
	TypeRemoved  Type = "removed"
	TypeError    Type = "error"
)

// Event is a sequenced payload consumed by feed subscribers.
type Event struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Type      Type      `json:"type"`
	State     string    `json:"state,omitempty"`
	JobID     int       `json:"jobId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Elapsed   int       `json:"elapsed,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Publisher accepts events from the core components.
type Publisher interface {
	Publish(event Event) Event
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(event Event) Event { return event }

// Bus stores recent events and wakes waiting readers on every publish.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	notify    chan struct{}
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		notify:    make(chan struct{}),
	}
}

// Publish appends one event and assigns sequence, id and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	close(b.notify)
	b.notify = make(chan struct{})

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Wait returns a channel closed by the next Publish.
func (b *Bus) Wait() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notify
}

// LastSeq returns the sequence of the newest event, or 0.
func (b *Bus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
