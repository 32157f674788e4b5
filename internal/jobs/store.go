package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/api"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

const (
	msgNoToken      = "No authentication token"
	msgListFailed   = "Failed to fetch transcriptions"
	msgGetFailed    = "Failed to fetch transcription"
	msgResultFailed = "Failed to fetch transcription result"
	msgRemoveFailed = "Failed to delete transcription"
)

// JobsAPI is the slice of the remote contract the store needs.
type JobsAPI interface {
	ListTranscriptions(ctx context.Context, token string) ([]domain.Transcription, error)
	GetTranscription(ctx context.Context, token string, id int) (domain.Transcription, error)
	GetResult(ctx context.Context, token string, id int) (domain.TranscriptionResult, error)
	DeleteTranscription(ctx context.Context, token string, id int) error
}

// TokenSource supplies the bearer credential.
type TokenSource interface {
	Token() string
}

// Store is the client-side job collection. All mutations go through reduce
// under one lock, so readers never observe a partial update.
type Store struct {
	mu        sync.Mutex
	state     State
	api       JobsAPI
	tokens    TokenSource
	publisher events.Publisher
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sends job changes to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// NewStore creates an empty store.
func NewStore(client JobsAPI, tokens TokenSource, opts ...Option) *Store {
	s := &Store{
		api:       client,
		tokens:    tokens,
		publisher: events.Discard,
		logger:    observability.WithComponent("jobs"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Jobs = append([]domain.Transcription(nil), s.state.Jobs...)
	return out
}

// List replaces the collection with the server's jobs.
func (s *Store) List(ctx context.Context) ([]domain.Transcription, error) {
	token, gen, logger, err := s.begin(kindList, 0)
	if err != nil {
		return nil, err
	}

	jobs, err := s.api.ListTranscriptions(ctx, token)
	if err != nil {
		return nil, s.failed(logger, kindList, gen, 0, err, msgListFailed)
	}

	next := s.apply(listed{gen: gen, jobs: jobs})
	if gen != next.gens[kindList] {
		observability.RecordStaleResponse(kindList.String())
		logger.Debug().Uint64("generation", gen).Msg("Discarded stale list response")
	} else {
		s.publisher.Publish(events.Event{Source: events.SourceJobs, Type: events.TypeState, Message: "listed"})
	}
	return jobs, nil
}

// Get fetches one job, makes it current and updates the held record.
func (s *Store) Get(ctx context.Context, id int) (domain.Transcription, error) {
	token, gen, logger, err := s.begin(kindGet, id)
	if err != nil {
		return domain.Transcription{}, err
	}

	job, err := s.api.GetTranscription(ctx, token, id)
	if err != nil {
		return domain.Transcription{}, s.failed(logger, kindGet, gen, id, err, msgGetFailed)
	}

	next := s.apply(fetched{gen: gen, job: job})
	if gen != next.gens[kindGet] {
		observability.RecordStaleResponse(kindGet.String())
		logger.Debug().Uint64("generation", gen).Msg("Discarded stale job response")
		return job, nil
	}

	if next.Current != nil {
		job = *next.Current
	}
	s.publisher.Publish(events.Event{
		Source: events.SourceJobs,
		Type:   events.TypeJob,
		JobID:  job.ID,
		Status: string(job.Status),
	})
	return job, nil
}

// Result fetches the output of a job and makes it the current result.
func (s *Store) Result(ctx context.Context, id int) (domain.TranscriptionResult, error) {
	token, gen, logger, err := s.begin(kindResult, id)
	if err != nil {
		return domain.TranscriptionResult{}, err
	}

	result, err := s.api.GetResult(ctx, token, id)
	if err != nil {
		return domain.TranscriptionResult{}, s.failed(logger, kindResult, gen, id, err, msgResultFailed)
	}

	next := s.apply(resultFetched{gen: gen, result: result})
	if gen != next.gens[kindResult] {
		observability.RecordStaleResponse(kindResult.String())
	}
	return result, nil
}

// Remove deletes a job on the server and drops it locally. If it was current,
// the current job and result are cleared.
func (s *Store) Remove(ctx context.Context, id int) error {
	token, gen, logger, err := s.begin(kindRemove, id)
	if err != nil {
		return err
	}

	if err := s.api.DeleteTranscription(ctx, token, id); err != nil {
		return s.failed(logger, kindRemove, gen, id, err, msgRemoveFailed)
	}

	s.apply(removed{id: id})
	logger.Info().Msg("Transcription deleted")
	s.publisher.Publish(events.Event{Source: events.SourceJobs, Type: events.TypeRemoved, JobID: id})
	return nil
}

// Insert places a newly created job first and makes it current.
func (s *Store) Insert(job domain.Transcription) {
	s.apply(inserted{job: job})
	s.logger.Info().Int("job_id", job.ID).Str("status", string(job.Status)).Msg("Transcription added")
	s.publisher.Publish(events.Event{
		Source: events.SourceJobs,
		Type:   events.TypeJob,
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// ClearCurrent deselects the current job and result.
func (s *Store) ClearCurrent() {
	s.apply(currentCleared{})
}

// ClearError drops the stored error message.
func (s *Store) ClearError() {
	s.apply(errorCleared{})
}

func (s *Store) begin(kind requestKind, id int) (string, uint64, zerolog.Logger, error) {
	logger := observability.WithCorrelationID(s.logger, "").With().
		Str("operation", kind.String()).
		Logger()
	if id != 0 {
		logger = logger.With().Int("job_id", id).Logger()
	}

	token := s.tokens.Token()
	if token == "" {
		authErr := domain.NewAuthError(msgNoToken)
		s.apply(rejected{message: authErr.Message})
		observability.RecordError(string(authErr.Kind), "jobs")
		return "", 0, logger, authErr
	}

	next := s.apply(requested{kind: kind, id: id})
	return token, next.gens[kind], logger, nil
}

func (s *Store) failed(logger zerolog.Logger, kind requestKind, gen uint64, id int, cause error, fallback string) error {
	var err *domain.Error
	dropID := 0
	switch {
	case api.IsNotFound(cause) && kind != kindList:
		err = domain.NewConflictError(api.DetailOr(cause, fallback), cause)
		if kind == kindRemove {
			dropID = id
		}
	case api.IsUnauthorized(cause):
		err = domain.NewAuthError(api.DetailOr(cause, fallback))
		err.Err = cause
	default:
		err = domain.NewNetworkError(api.DetailOr(cause, fallback), cause)
	}

	next := s.apply(requestFailed{kind: kind, gen: gen, message: err.Message, dropID: dropID})
	if kind != kindRemove && gen != next.gens[kind] {
		observability.RecordStaleResponse(kind.String())
	} else {
		s.publisher.Publish(events.Event{Source: events.SourceJobs, Type: events.TypeError, JobID: id, Message: err.Message})
	}

	observability.RecordError(string(err.Kind), "jobs")
	logger.Warn().Err(cause).Str("kind", string(err.Kind)).Msg("Job operation failed")
	return err
}

func (s *Store) apply(e event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = reduce(s.state, e)
	observability.SetJobCount(len(s.state.Jobs))
	return s.state
}
