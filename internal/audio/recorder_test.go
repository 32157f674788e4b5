package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-client/internal/domain"
	"github.com/lexiqai/transcribe-client/internal/events"
)

var errStreamClosed = errors.New("stream closed")

// fakeTicker has an unbuffered channel, so a completed tick() means the
// recorder loop has taken the tick.
type fakeTicker struct {
	c       chan time.Time
	stopped int32
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { atomic.StoreInt32(&f.stopped, 1) }
func (f *fakeTicker) tick()               { f.c <- time.Now() }
func (f *fakeTicker) isStopped() bool     { return atomic.LoadInt32(&f.stopped) == 1 }

type tickerSource struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (s *tickerSource) factory(time.Duration) Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time)}
	s.tickers = append(s.tickers, t)
	return t
}

func (s *tickerSource) last() *fakeTicker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickers[len(s.tickers)-1]
}

type fakeStream struct {
	chunks    chan []byte
	closed    chan struct{}
	failed    chan struct{}
	closeOnce sync.Once
	failOnce  sync.Once
}

func newFakeStream(preload [][]byte) *fakeStream {
	s := &fakeStream{
		chunks: make(chan []byte, len(preload)),
		closed: make(chan struct{}),
		failed: make(chan struct{}),
	}
	for _, c := range preload {
		s.chunks <- c
	}
	return s
}

func (s *fakeStream) Read() ([]byte, error) {
	select {
	case c := <-s.chunks:
		return c, nil
	case <-s.failed:
		return nil, errors.New("device unplugged")
	case <-s.closed:
		return nil, errStreamClosed
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) fail() { s.failOnce.Do(func() { close(s.failed) }) }

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeDevice struct {
	mu      sync.Mutex
	err     error
	panics  bool
	preload [][]byte
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context, f Format) (InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panics {
		panic("driver exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream(d.preload)
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *fakeDevice) lastStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type fakePlayback struct {
	done    chan struct{}
	once    sync.Once
	stopped int32
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

func (p *fakePlayback) Stop() error {
	atomic.StoreInt32(&p.stopped, 1)
	p.finish()
	return nil
}

func (p *fakePlayback) finish() { p.once.Do(func() { close(p.done) }) }

type fakePlayer struct {
	mu        sync.Mutex
	err       error
	played    [][]byte
	playbacks []*fakePlayback
}

func (f *fakePlayer) Play(ctx context.Context, wav []byte) (Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePlayback{done: make(chan struct{})}
	f.played = append(f.played, wav)
	f.playbacks = append(f.playbacks, p)
	return p, nil
}

func (f *fakePlayer) last() *fakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playbacks[len(f.playbacks)-1]
}

func toneChunks(n, samplesPerChunk int) [][]byte {
	chunks := make([][]byte, n)
	for i := range chunks {
		chunks[i] = SamplesToPCM16(constantFrame(samplesPerChunk, 3000))
	}
	return chunks
}

type harness struct {
	rec     *Recorder
	device  *fakeDevice
	player  *fakePlayer
	tickers *tickerSource
	bus     *events.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		device:  &fakeDevice{preload: toneChunks(4, 512)},
		player:  &fakePlayer{},
		tickers: &tickerSource{},
		bus:     events.NewBus(200),
	}
	h.rec = NewRecorder(h.device, h.player,
		WithTicker(h.tickers.factory),
		WithPublisher(h.bus),
		WithFormat(Format{SampleRate: 16000, Channels: 1}),
	)
	t.Cleanup(func() { h.rec.Close() })
	return h
}

func (h *harness) waitCaptured(t *testing.T, bytes int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.rec.Snapshot().CapturedBytes == bytes
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRecorder_FullLifecycleEndsIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	assert.Equal(t, StateRecording, h.rec.Snapshot().State)
	h.waitCaptured(t, 4*512*2)

	require.NoError(t, h.rec.Stop())
	snap := h.rec.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.True(t, snap.HasBuffer)
	assert.Equal(t, 44+4*512*2, snap.BufferSize)
	assert.True(t, h.device.lastStream().isClosed())
	assert.True(t, h.tickers.last().isStopped())

	require.NoError(t, h.rec.Play(ctx))
	assert.Equal(t, StatePlaying, h.rec.Snapshot().State)

	require.NoError(t, h.rec.Pause())
	assert.Equal(t, StateStopped, h.rec.Snapshot().State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.player.last().stopped))

	require.NoError(t, h.rec.Delete())
	snap = h.rec.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.HasBuffer)
	assert.Zero(t, snap.ElapsedSeconds)

	_, err := h.rec.Recording()
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestRecorder_FiveTicksThenStop(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.rec.Start(context.Background()))
	ticker := h.tickers.last()
	for i := 0; i < 5; i++ {
		ticker.tick()
	}
	assert.Equal(t, 5, h.rec.Snapshot().ElapsedSeconds)

	require.NoError(t, h.rec.Stop())
	snap := h.rec.Snapshot()
	assert.Equal(t, 5, snap.ElapsedSeconds)
	assert.True(t, snap.HasBuffer)

	res, err := h.rec.Recording()
	require.NoError(t, err)
	assert.Equal(t, WAVMimeType, res.MimeType)
	pcm, format, err := DecodeWAV(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 16000, format.SampleRate)
	assert.Len(t, pcm, snap.BufferSize-44)
}

func TestRecorder_DeniedDeviceKeepsPriorState(t *testing.T) {
	h := newHarness(t)
	h.device.err = errors.New("permission denied")

	err := h.rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindMedia))
	assert.Equal(t, "Could not access microphone. Please check your device permissions.", domain.Message(err))
	assert.Equal(t, StateIdle, h.rec.Snapshot().State)

	h.device.mu.Lock()
	h.device.err = nil
	h.device.mu.Unlock()
	require.NoError(t, h.rec.Start(context.Background()))
	require.NoError(t, h.rec.Stop())

	h.device.mu.Lock()
	h.device.err = errors.New("device busy")
	h.device.mu.Unlock()
	require.Error(t, h.rec.Start(context.Background()))
	snap := h.rec.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.True(t, snap.HasBuffer)
}

func TestRecorder_DevicePanicBecomesMediaError(t *testing.T) {
	h := newHarness(t)
	h.device.panics = true

	err := h.rec.Start(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindMedia))
	assert.Equal(t, StateIdle, h.rec.Snapshot().State)
}

func TestRecorder_InvalidTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.rec.Stop(), ErrInvalidTransition)
	assert.ErrorIs(t, h.rec.Play(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, h.rec.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, h.rec.Delete(), ErrInvalidTransition)

	require.NoError(t, h.rec.Start(ctx))
	assert.ErrorIs(t, h.rec.Start(ctx), ErrInvalidTransition)
	assert.Equal(t, 1, h.device.opened())
	assert.ErrorIs(t, h.rec.Delete(), ErrInvalidTransition)

	require.NoError(t, h.rec.Stop())
	assert.ErrorIs(t, h.rec.Pause(), ErrInvalidTransition)

	require.NoError(t, h.rec.Play(ctx))
	assert.ErrorIs(t, h.rec.Play(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, h.rec.Start(ctx), ErrInvalidTransition)
}

func TestRecorder_NaturalPlaybackEndReturnsToStopped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	require.NoError(t, h.rec.Stop())
	require.NoError(t, h.rec.Play(ctx))

	h.player.last().finish()
	require.Eventually(t, func() bool {
		return h.rec.Snapshot().State == StateStopped
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.rec.Snapshot().HasBuffer)
}

func TestRecorder_PlayUsesCopyOfBuffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	h.waitCaptured(t, 4*512*2)
	require.NoError(t, h.rec.Stop())
	require.NoError(t, h.rec.Play(ctx))

	played := h.player.played[0]
	for i := range played {
		played[i] = 0
	}

	res, err := h.rec.Recording()
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(res.Data[:4]))
}

func TestRecorder_PlaybackFailure(t *testing.T) {
	h := newHarness(t)
	h.player.err = errors.New("no output")
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	require.NoError(t, h.rec.Stop())

	err := h.rec.Play(ctx)
	assert.True(t, domain.IsKind(err, domain.KindMedia))
	assert.Equal(t, StateStopped, h.rec.Snapshot().State)
}

func TestRecorder_CloseWhileRecordingReleasesDevice(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.rec.Start(context.Background()))
	stream := h.device.lastStream()
	ticker := h.tickers.last()

	require.NoError(t, h.rec.Close())
	assert.True(t, stream.isClosed())
	assert.True(t, ticker.isStopped())
	assert.Equal(t, StateIdle, h.rec.Snapshot().State)
	assert.ErrorIs(t, h.rec.Start(context.Background()), ErrClosed)
	assert.NoError(t, h.rec.Close())
}

func TestRecorder_CloseWhilePlayingReleasesPlayback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	require.NoError(t, h.rec.Stop())
	require.NoError(t, h.rec.Play(ctx))
	playback := h.player.last()

	require.NoError(t, h.rec.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&playback.stopped))
	_, err := h.rec.Recording()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecorder_ReRecordReplacesBuffer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.rec.Start(ctx))
	h.waitCaptured(t, 4*512*2)
	require.NoError(t, h.rec.Stop())

	h.device.mu.Lock()
	h.device.preload = toneChunks(1, 512)
	h.device.mu.Unlock()

	require.NoError(t, h.rec.Start(ctx))
	snap := h.rec.Snapshot()
	assert.Equal(t, StateRecording, snap.State)
	assert.False(t, snap.HasBuffer)
	assert.Zero(t, snap.ElapsedSeconds)

	h.waitCaptured(t, 512*2)
	require.NoError(t, h.rec.Stop())
	assert.Equal(t, 44+512*2, h.rec.Snapshot().BufferSize)
}

func TestRecorder_StreamFailureFinalizes(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.rec.Start(context.Background()))
	h.waitCaptured(t, 4*512*2)
	h.device.lastStream().fail()

	require.Eventually(t, func() bool {
		return h.rec.Snapshot().State == StateStopped
	}, 2*time.Second, 5*time.Millisecond)
	snap := h.rec.Snapshot()
	assert.True(t, snap.HasBuffer)
	assert.NotEmpty(t, snap.LastError)
}

func TestRecorder_PublishesStateAndTicks(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.rec.Start(context.Background()))
	h.tickers.last().tick()
	require.NoError(t, h.rec.Stop())

	var states []string
	ticks := 0
	for _, ev := range h.bus.Since(0) {
		switch ev.Type {
		case events.TypeState:
			states = append(states, ev.State)
		case events.TypeTick:
			ticks++
		}
	}
	assert.Equal(t, []string{"recording", "stopped"}, states)
	assert.Equal(t, 1, ticks)
}

func TestTake_DefaultTitleOnlyWhenEmpty(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 10, 30, 0, 0, time.Local)

	h := newHarness(t)
	take := NewTake(h.rec)
	take.now = func() time.Time { return fixed }

	require.NoError(t, h.rec.Start(context.Background()))
	require.NoError(t, take.Stop())
	assert.Equal(t, "Recording 2024-03-01 10:30:00", take.Metadata.Title)
	assert.Equal(t, domain.DefaultLanguage, take.Metadata.LanguageCode)

	res, err := take.Resource()
	require.NoError(t, err)
	assert.Equal(t, "Recording 2024-03-01 10-30-00.wav", res.Filename)

	h2 := newHarness(t)
	named := NewTake(h2.rec)
	named.now = func() time.Time { return fixed }
	named.Metadata.Title = "Standup"
	require.NoError(t, h2.rec.Start(context.Background()))
	require.NoError(t, named.Stop())
	assert.Equal(t, "Standup", named.Metadata.Title)

	res, err = named.Resource()
	require.NoError(t, err)
	assert.Equal(t, "Standup.wav", res.Filename)
}

func TestTake_StopFailureLeavesTitle(t *testing.T) {
	h := newHarness(t)
	take := NewTake(h.rec)

	assert.ErrorIs(t, take.Stop(), ErrInvalidTransition)
	assert.Empty(t, take.Metadata.Title)
}
