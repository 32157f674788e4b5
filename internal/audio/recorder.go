package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

var (
	// ErrInvalidTransition is returned for operations the current state does not allow.
	ErrInvalidTransition = errors.New("invalid recorder transition")
	// ErrNoRecording is returned when no finalized buffer is held.
	ErrNoRecording = errors.New("no finalized recording")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recorder closed")
)

const (
	msgMicrophoneDenied = "Could not access microphone. Please check your device permissions."
	msgPlaybackFailed   = "Could not play the recording. Please check your audio output device."
	msgCaptureLost      = "Recording stopped: the microphone stopped delivering audio."
)

// State is the recorder lifecycle position.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	State          State  `json:"-"`
	StateName      string `json:"state"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	HasBuffer      bool   `json:"hasBuffer"`
	BufferSize     int    `json:"bufferSize"`
	CapturedBytes  int    `json:"capturedBytes"`
	LastError      string `json:"lastError,omitempty"`
}

type chunkMsg struct {
	session int
	data    []byte
	err     error
}

// Recorder captures audio into memory and plays it back. One goroutine owns
// all state; public methods are requests answered by that goroutine, and
// device, timer and playback events arrive as messages on the same loop.
type Recorder struct {
	device    Device
	player    Player
	format    Format
	threshold float64
	newTicker TickerFactory
	publisher events.Publisher
	logger    zerolog.Logger

	requests  chan func()
	chunks    chan chunkMsg
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	state      State
	elapsed    int
	session    int
	stream     InputStream
	readerStop chan struct{}
	ticker     Ticker
	pcm        [][]byte
	captured   int
	buffer     []byte
	playback   Playback
	lastError  string
	closing    bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFormat sets the capture format.
func WithFormat(f Format) Option {
	return func(r *Recorder) { r.format = f }
}

// WithSilenceThreshold sets the RMS level below which a capture is reported silent.
func WithSilenceThreshold(threshold float64) Option {
	return func(r *Recorder) { r.threshold = threshold }
}

// WithTicker replaces the one-second counter source.
func WithTicker(factory TickerFactory) Option {
	return func(r *Recorder) { r.newTicker = factory }
}

// WithPublisher sends state changes and ticks to p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// NewRecorder starts the owner loop. player may be nil when no output is
// available; Play then fails with a media error.
func NewRecorder(device Device, player Player, opts ...Option) *Recorder {
	r := &Recorder{
		device:    device,
		player:    player,
		format:    DefaultFormat,
		threshold: 500.0,
		newTicker: NewRealTicker,
		publisher: events.Discard,
		logger:    observability.WithComponent("recorder"),
		requests:  make(chan func()),
		chunks:    make(chan chunkMsg),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.run()
	return r
}

// Start opens the input device and begins a new capture. Valid from Idle or
// Stopped; a held recording is kept until the new one is finalized.
func (r *Recorder) Start(ctx context.Context) error {
	var err error
	if callErr := r.call(func() { err = r.start(ctx) }); callErr != nil {
		return callErr
	}
	return err
}

// Stop finalizes the capture into a WAV buffer and releases the device.
func (r *Recorder) Stop() error {
	var err error
	if callErr := r.call(func() { err = r.stop() }); callErr != nil {
		return callErr
	}
	return err
}

// Play starts playback of a copy of the finalized buffer.
func (r *Recorder) Play(ctx context.Context) error {
	var err error
	if callErr := r.call(func() { err = r.play(ctx) }); callErr != nil {
		return callErr
	}
	return err
}

// Pause stops playback and returns to Stopped.
func (r *Recorder) Pause() error {
	var err error
	if callErr := r.call(func() { err = r.pause() }); callErr != nil {
		return callErr
	}
	return err
}

// Delete discards the finalized buffer.
func (r *Recorder) Delete() error {
	var err error
	if callErr := r.call(func() { err = r.discard() }); callErr != nil {
		return callErr
	}
	return err
}

// Snapshot returns the current state. After Close it reports Idle.
func (r *Recorder) Snapshot() Snapshot {
	var snap Snapshot
	if err := r.call(func() { snap = r.snapshot() }); err != nil {
		return Snapshot{State: StateIdle, StateName: StateIdle.String()}
	}
	return snap
}

// Recording returns the finalized buffer as an uploadable resource.
func (r *Recorder) Recording() (*domain.AudioResource, error) {
	var res *domain.AudioResource
	err := r.call(func() {
		if r.state != StateStopped && r.state != StatePlaying {
			return
		}
		res = &domain.AudioResource{
			Filename: "recording.wav",
			MimeType: WAVMimeType,
			Data:     append([]byte(nil), r.buffer...),
		}
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNoRecording
	}
	return res, nil
}

// Close releases the device, the counter and any playback, then stops the
// loop. It is safe to call more than once and from any state.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.call(func() {
			r.releaseCapture()
			r.releasePlayback()
			r.buffer = nil
			r.pcm = nil
			r.elapsed = 0
			r.state = StateIdle
			r.closing = true
		})
		<-r.done
		r.logger.Debug().Msg("Recorder closed")
	})
	return nil
}

// call runs fn on the loop goroutine and waits for it.
func (r *Recorder) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case r.requests <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrClosed
	}
	<-finished
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)

	for {
		var tick <-chan time.Time
		if r.ticker != nil {
			tick = r.ticker.C()
		}
		var playbackDone <-chan struct{}
		if r.playback != nil {
			playbackDone = r.playback.Done()
		}

		select {
		case fn := <-r.requests:
			fn()
			if r.closing {
				return
			}
		case <-tick:
			if r.state == StateRecording {
				r.elapsed++
				r.publisher.Publish(events.Event{Source: events.SourceRecorder, Type: events.TypeTick, State: r.state.String(), Elapsed: r.elapsed})
			}
		case msg := <-r.chunks:
			r.handleChunk(msg)
		case <-playbackDone:
			r.playbackEnded()
		}
	}
}

func (r *Recorder) start(ctx context.Context) error {
	if r.state != StateIdle && r.state != StateStopped {
		return r.invalid("start")
	}

	stream, err := r.openDevice(ctx)
	if err != nil {
		r.lastError = msgMicrophoneDenied
		observability.RecordError(string(domain.KindMedia), "recorder")
		r.logger.Warn().Err(err).Msg("Microphone unavailable")
		r.publishError(msgMicrophoneDenied)
		return domain.NewMediaError(msgMicrophoneDenied, err)
	}

	r.session++
	r.stream = stream
	r.readerStop = make(chan struct{})
	r.pcm = nil
	r.captured = 0
	r.elapsed = 0
	r.lastError = ""
	r.ticker = r.newTicker(time.Second)
	go r.read(r.session, stream, r.readerStop)

	r.setState(StateRecording)
	r.logger.Info().
		Int("sample_rate", r.format.SampleRate).
		Int("channels", r.format.Channels).
		Msg("Recording started")
	return nil
}

// openDevice converts a device panic into an error.
func (r *Recorder) openDevice(ctx context.Context) (stream InputStream, err error) {
	if r.device == nil {
		return nil, errors.New("no input device configured")
	}
	defer func() {
		if p := recover(); p != nil {
			stream, err = nil, fmt.Errorf("input device panicked: %v", p)
		}
	}()
	return r.device.Open(ctx, r.format)
}

func (r *Recorder) read(session int, stream InputStream, stop <-chan struct{}) {
	for {
		data, err := stream.Read()
		select {
		case r.chunks <- chunkMsg{session: session, data: data, err: err}:
		case <-stop:
			return
		case <-r.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Recorder) handleChunk(msg chunkMsg) {
	if msg.session != r.session || r.state != StateRecording {
		return
	}
	if msg.err != nil {
		r.logger.Warn().Err(msg.err).Msg("Input stream failed during recording")
		r.lastError = msgCaptureLost
		r.publishError(msgCaptureLost)
		if err := r.finalize(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to finalize interrupted recording")
		}
		return
	}
	r.pcm = append(r.pcm, msg.data)
	r.captured += len(msg.data)
}

func (r *Recorder) stop() error {
	if r.state != StateRecording {
		return r.invalid("stop")
	}
	return r.finalize()
}

// finalize releases the device and wraps the captured PCM in WAV.
func (r *Recorder) finalize() error {
	r.releaseCapture()

	pcm := Concat(r.pcm)
	r.pcm = nil
	if len(pcm)%BytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}

	wavData, err := EncodeWAV(pcm, r.format)
	if err != nil {
		r.buffer = nil
		r.setState(StateIdle)
		return fmt.Errorf("failed to finalize recording: %w", err)
	}
	r.buffer = wavData

	samples, _ := PCM16ToSamples(pcm)
	activity := Analyze(samples, DefaultVADConfig(r.format, r.threshold))
	observability.RecordRecording(r.elapsed, activity.Silent())
	if activity.Silent() {
		r.logger.Warn().
			Float64("rms", activity.RMS).
			Float64("threshold", r.threshold).
			Msg("Recording appears to be silent")
	}

	r.setState(StateStopped)
	r.logger.Info().
		Int("elapsed_seconds", r.elapsed).
		Int("pcm_bytes", len(pcm)).
		Float64("duration_seconds", DurationSeconds(pcm, r.format)).
		Int("speech_segments", activity.SpeechSegments).
		Msg("Recording stopped")
	return nil
}

func (r *Recorder) play(ctx context.Context) error {
	if r.state != StateStopped || r.buffer == nil {
		return r.invalid("play")
	}
	if r.player == nil {
		r.publishError(msgPlaybackFailed)
		return domain.NewMediaError(msgPlaybackFailed, errors.New("no output device configured"))
	}

	playback, err := r.player.Play(ctx, append([]byte(nil), r.buffer...))
	if err != nil {
		r.logger.Warn().Err(err).Msg("Playback failed to start")
		r.publishError(msgPlaybackFailed)
		return domain.NewMediaError(msgPlaybackFailed, err)
	}

	r.playback = playback
	r.setState(StatePlaying)
	return nil
}

func (r *Recorder) pause() error {
	if r.state != StatePlaying {
		return r.invalid("pause")
	}
	r.releasePlayback()
	r.setState(StateStopped)
	return nil
}

func (r *Recorder) playbackEnded() {
	r.releasePlayback()
	if r.state == StatePlaying {
		r.setState(StateStopped)
	}
}

func (r *Recorder) discard() error {
	if r.state != StateStopped && r.state != StatePlaying {
		return r.invalid("delete")
	}
	r.releasePlayback()
	r.buffer = nil
	r.elapsed = 0
	r.setState(StateIdle)
	return nil
}

func (r *Recorder) releaseCapture() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	if r.readerStop != nil {
		close(r.readerStop)
		r.readerStop = nil
	}
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close input stream")
		}
		r.stream = nil
	}
}

func (r *Recorder) releasePlayback() {
	if r.playback == nil {
		return
	}
	if err := r.playback.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to stop playback")
	}
	r.playback = nil
}

func (r *Recorder) snapshot() Snapshot {
	snap := Snapshot{
		State:          r.state,
		StateName:      r.state.String(),
		ElapsedSeconds: r.elapsed,
		CapturedBytes:  r.captured,
		LastError:      r.lastError,
	}
	if r.state == StateStopped || r.state == StatePlaying {
		snap.HasBuffer = r.buffer != nil
		snap.BufferSize = len(r.buffer)
	}
	return snap
}

func (r *Recorder) setState(s State) {
	r.state = s
	r.publisher.Publish(events.Event{Source: events.SourceRecorder, Type: events.TypeState, State: s.String(), Elapsed: r.elapsed})
}

func (r *Recorder) publishError(msg string) {
	r.publisher.Publish(events.Event{Source: events.SourceRecorder, Type: events.TypeError, State: r.state.String(), Message: msg})
}

func (r *Recorder) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, r.state)
}
