// Package portaudio binds the recorder to the host's default audio devices.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/lexiqai/transcribe-client/internal/audio"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

// Microphone opens the default input device.
type Microphone struct {
	FramesPerBuffer int
}

// NewMicrophone returns a microphone reading framesPerBuffer frames per chunk.
func NewMicrophone(framesPerBuffer int) *Microphone {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &Microphone{FramesPerBuffer: framesPerBuffer}
}

// Open initializes PortAudio and starts a capture stream. Every successful
// Open is balanced by a Terminate when the stream is closed.
func (m *Microphone) Open(ctx context.Context, f audio.Format) (audio.InputStream, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	in := make([]int16, m.FramesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), m.FramesPerBuffer, in)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("open input stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("start input stream failed: %w", err)
	}

	logger := observability.WithComponent("microphone")
	logger.Debug().
		Int("sample_rate", f.SampleRate).
		Int("channels", f.Channels).
		Int("frames_per_buffer", m.FramesPerBuffer).
		Msg("Input stream opened")
	return &inputStream{stream: stream, in: in}, nil
}

type inputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	in     []int16
	closed bool
}

var errStreamClosed = errors.New("input stream closed")

// Read blocks for one buffer of frames. Input overflow is not fatal; the
// partially filled buffer is still delivered.
func (s *inputStream) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStreamClosed
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return nil, err
	}
	return audio.SamplesToPCM16(s.in), nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	pa.Terminate()
	return errors.Join(stopErr, closeErr)
}

// Speaker plays WAV buffers on the default output device.
type Speaker struct {
	FramesPerBuffer int
}

// NewSpeaker returns a speaker writing framesPerBuffer frames per chunk.
func NewSpeaker(framesPerBuffer int) *Speaker {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &Speaker{FramesPerBuffer: framesPerBuffer}
}

// Play decodes wavData and starts writing it to the output device.
func (sp *Speaker) Play(ctx context.Context, wavData []byte) (audio.Playback, error) {
	pcm, f, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, err
	}
	samples, err := audio.PCM16ToSamples(pcm)
	if err != nil {
		return nil, err
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	out := make([]int16, sp.FramesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), sp.FramesPerBuffer, out)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("open output stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("start output stream failed: %w", err)
	}

	p := &playback{
		stream: stream,
		out:    out,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run(ctx, samples)
	return p, nil
}

type playback struct {
	stream   *pa.Stream
	out      []int16
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (p *playback) run(ctx context.Context, samples []int16) {
	defer close(p.done)
	defer func() {
		p.stream.Stop()
		p.stream.Close()
		pa.Terminate()
	}()

	logger := observability.WithComponent("speaker")
	for offset := 0; offset < len(samples); offset += len(p.out) {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		n := copy(p.out, samples[offset:])
		for i := n; i < len(p.out); i++ {
			p.out[i] = 0
		}
		if err := p.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			logger.Warn().Err(err).Msg("Output stream write failed")
			return
		}
	}
}

func (p *playback) Done() <-chan struct{} { return p.done }

// Stop interrupts playback and waits for the device to be released.
func (p *playback) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
	return nil
}
