package jobs

import (
	"github.com/samber/lo"

	"github.com/lexiqai/transcribe-client/internal/domain"
)

// requestKind groups requests whose responses supersede each other.
type requestKind int

const (
	kindList requestKind = iota
	kindGet
	kindResult
	kindRemove
	kindCount
)

func (k requestKind) String() string {
	switch k {
	case kindList:
		return "list"
	case kindGet:
		return "get"
	case kindResult:
		return "result"
	case kindRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// State is the job collection plus the selected job.
type State struct {
	Jobs          []domain.Transcription      `json:"jobs"`
	Current       *domain.Transcription       `json:"current,omitempty"`
	CurrentResult *domain.TranscriptionResult `json:"currentResult,omitempty"`
	Error         string                      `json:"error,omitempty"`
	InFlight      int                         `json:"inFlight"`

	gens     [kindCount]uint64
	getID    int
	resultID int
}

// Loading reports whether any request is outstanding.
func (s State) Loading() bool {
	return s.InFlight > 0
}

// Find returns the held record with id.
func (s State) Find(id int) (domain.Transcription, bool) {
	return lo.Find(s.Jobs, func(j domain.Transcription) bool { return j.ID == id })
}

type event interface{}

type (
	requested struct {
		kind requestKind
		id   int
	}
	listed struct {
		gen  uint64
		jobs []domain.Transcription
	}
	fetched struct {
		gen uint64
		job domain.Transcription
	}
	resultFetched struct {
		gen    uint64
		result domain.TranscriptionResult
	}
	removed struct {
		id int
	}
	inserted struct {
		job domain.Transcription
	}
	requestFailed struct {
		kind    requestKind
		gen     uint64
		message string
		dropID  int
	}
	rejected struct {
		message string
	}
	currentCleared struct{}
	errorCleared   struct{}
)

// reduce applies one event and returns the next state. The input and its
// slices are never modified.
func reduce(s State, e event) State {
	switch e := e.(type) {
	case requested:
		s.InFlight++
		s.Error = ""
		s.gens[e.kind]++
		switch e.kind {
		case kindGet:
			s.getID = e.id
		case kindResult:
			s.resultID = e.id
		case kindRemove:
			// A list issued before the delete must not bring the job back.
			s.gens[kindList]++
		}

	case listed:
		s.InFlight--
		if e.gen != s.gens[kindList] {
			return s
		}
		s.Jobs = lo.Map(e.jobs, func(j domain.Transcription, _ int) domain.Transcription {
			if held, ok := s.Find(j.ID); ok {
				return keepTerminal(held, j)
			}
			return j
		})

	case fetched:
		s.InFlight--
		if e.gen != s.gens[kindGet] {
			return s
		}
		job := e.job
		if held, ok := s.Find(job.ID); ok {
			job = keepTerminal(held, job)
			s.Jobs = replace(s.Jobs, job)
		}
		if s.Current != nil && s.Current.ID == job.ID {
			job = keepTerminal(*s.Current, job)
		}
		s.Current = &job

	case resultFetched:
		s.InFlight--
		if e.gen != s.gens[kindResult] {
			return s
		}
		result := e.result
		s.CurrentResult = &result

	case removed:
		s.InFlight--
		s = drop(s, e.id)

	case inserted:
		job := e.job
		s.Jobs = append([]domain.Transcription{job}, lo.Reject(s.Jobs, func(j domain.Transcription, _ int) bool {
			return j.ID == job.ID
		})...)
		s.Current = &job
		s.CurrentResult = nil
		s.gens[kindList]++

	case requestFailed:
		s.InFlight--
		if e.kind != kindRemove && e.gen != s.gens[e.kind] {
			return s
		}
		s.Error = e.message
		if e.dropID != 0 {
			s = drop(s, e.dropID)
		}

	case rejected:
		s.Error = e.message

	case currentCleared:
		s.Current = nil
		s.CurrentResult = nil

	case errorCleared:
		s.Error = ""
	}
	return s
}

// drop removes id from the collection and clears it as current. Requests
// for that id still in flight are superseded.
func drop(s State, id int) State {
	if _, ok := s.Find(id); ok {
		s.Jobs = lo.Reject(s.Jobs, func(j domain.Transcription, _ int) bool { return j.ID == id })
	}
	if s.Current != nil && s.Current.ID == id {
		s.Current = nil
		s.CurrentResult = nil
	}
	if s.getID == id {
		s.gens[kindGet]++
	}
	if s.resultID == id {
		s.gens[kindResult]++
	}
	return s
}

func replace(jobs []domain.Transcription, job domain.Transcription) []domain.Transcription {
	return lo.Map(jobs, func(j domain.Transcription, _ int) domain.Transcription {
		if j.ID == job.ID {
			return job
		}
		return j
	})
}

// keepTerminal prefers the held record once it has reached a final status.
func keepTerminal(held, incoming domain.Transcription) domain.Transcription {
	if held.Status.IsTerminal() && !incoming.Status.IsTerminal() {
		return held
	}
	return incoming
}
