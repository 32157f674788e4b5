package upload

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/api"
	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

const (
	msgNoToken      = "No authentication token"
	msgUploadFailed = "Failed to upload transcription"
)

// ErrUploadInProgress is returned when Submit is called while another
// submission on the same coordinator is pending.
var ErrUploadInProgress = errors.New("an upload is already in progress")

// Creator is the slice of the remote contract used for submissions.
type Creator interface {
	CreateTranscription(
		ctx context.Context,
		token string,
		resource *domain.AudioResource,
		meta domain.UploadMetadata,
		progress api.ProgressFunc,
	) (domain.Transcription, error)
}

// TokenSource supplies the bearer credential.
type TokenSource interface {
	Token() string
}

// Sink receives jobs created by successful submissions.
type Sink interface {
	Insert(job domain.Transcription)
}

// Operation describes the latest submission.
type Operation struct {
	Filename string                `json:"filename,omitempty"`
	Size     int64                 `json:"size"`
	Metadata domain.UploadMetadata `json:"-"`
	Progress int                   `json:"progress"`
	Pending  bool                  `json:"pending"`
	Job      *domain.Transcription `json:"job,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Coordinator validates and sends one submission at a time and reports
// monotonic progress.
type Coordinator struct {
	mu        sync.Mutex
	op        Operation
	listeners []func(percent int)

	api       Creator
	tokens    TokenSource
	sink      Sink
	publisher events.Publisher
	logger    zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSink hands created jobs to sink.
func WithSink(sink Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithPublisher sends progress and outcomes to p.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(client Creator, tokens TokenSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:       client,
		tokens:    tokens,
		publisher: events.Discard,
		logger:    observability.WithComponent("upload"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnProgress registers fn to receive each progress increase.
func (c *Coordinator) OnProgress(fn func(percent int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close detaches all progress listeners. A request in flight still runs to
// completion under its own context.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = nil
}

// Progress returns the percentage of the latest submission.
func (c *Coordinator) Progress() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.op.Progress
}

// Operation returns a copy of the latest submission state.
func (c *Coordinator) Operation() Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.op
}

// Submit validates the resource and metadata, then sends them as a new job.
// Validation and credential failures never reach the network.
func (c *Coordinator) Submit(ctx context.Context, resource *domain.AudioResource, meta domain.UploadMetadata) (domain.Transcription, error) {
	logger := observability.WithCorrelationID(c.logger, "").With().Str("operation", "submit").Logger()

	c.mu.Lock()
	if c.op.Pending {
		c.mu.Unlock()
		return domain.Transcription{}, ErrUploadInProgress
	}

	if err := Validate(resource, meta); err != nil {
		c.op.Error = domain.Message(err)
		c.mu.Unlock()
		return domain.Transcription{}, c.reject(logger, err)
	}

	token := c.tokens.Token()
	if token == "" {
		err := domain.NewAuthError(msgNoToken)
		c.op.Error = err.Message
		c.mu.Unlock()
		return domain.Transcription{}, c.reject(logger, err)
	}

	meta.Title = strings.TrimSpace(meta.Title)
	if meta.LanguageCode == "" {
		meta.LanguageCode = domain.DefaultLanguage
	}
	c.op = Operation{
		Filename: resource.Filename,
		Size:     resource.Size(),
		Metadata: meta,
		Pending:  true,
	}
	c.mu.Unlock()

	observability.SetUploadProgress(0)
	logger.Info().
		Str("filename", resource.Filename).
		Str("mime_type", resource.MimeType).
		Int64("size_bytes", resource.Size()).
		Msg("Uploading audio")

	job, err := c.api.CreateTranscription(ctx, token, resource, meta, func(sent, total int64) {
		if total <= 0 {
			return
		}
		percent := int(sent * 100 / total)
		if percent > 99 {
			percent = 99
		}
		c.advance(percent)
	})
	if err != nil {
		return domain.Transcription{}, c.finishWithError(logger, err)
	}

	c.advance(100)
	c.mu.Lock()
	c.op.Pending = false
	c.op.Job = &job
	c.mu.Unlock()

	logger.Info().Int("job_id", job.ID).Str("status", string(job.Status)).Msg("Upload complete")
	if c.sink != nil {
		c.sink.Insert(job)
	}
	return job, nil
}

// advance records percent if it is higher than the current value and
// notifies listeners.
func (c *Coordinator) advance(percent int) {
	c.mu.Lock()
	if percent <= c.op.Progress {
		c.mu.Unlock()
		return
	}
	c.op.Progress = percent
	listeners := append([]func(int){}, c.listeners...)
	c.mu.Unlock()

	observability.SetUploadProgress(percent)
	c.publisher.Publish(events.Event{Source: events.SourceUpload, Type: events.TypeProgress, Progress: percent})
	for _, fn := range listeners {
		fn(percent)
	}
}

func (c *Coordinator) finishWithError(logger zerolog.Logger, cause error) error {
	var err *domain.Error
	if api.IsUnauthorized(cause) {
		err = domain.NewAuthError(api.DetailOr(cause, msgUploadFailed))
		err.Err = cause
	} else {
		err = domain.NewNetworkError(api.DetailOr(cause, msgUploadFailed), cause)
	}

	// A failed submission starts over from zero.
	c.mu.Lock()
	c.op.Pending = false
	c.op.Progress = 0
	c.op.Error = err.Message
	c.mu.Unlock()

	observability.SetUploadProgress(0)
	observability.RecordError(string(err.Kind), "upload")
	logger.Error().Err(cause).Msg("Upload failed")
	c.publisher.Publish(events.Event{Source: events.SourceUpload, Type: events.TypeError, Message: err.Message})
	return err
}

func (c *Coordinator) reject(logger zerolog.Logger, err error) error {
	observability.RecordError(string(kindOf(err)), "upload")
	logger.Warn().Str("reason", domain.Message(err)).Msg("Upload rejected")
	c.publisher.Publish(events.Event{Source: events.SourceUpload, Type: events.TypeError, Message: domain.Message(err)})
	return err
}

func kindOf(err error) domain.ErrorKind {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
