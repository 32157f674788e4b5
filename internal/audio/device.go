package audio

import (
	"context"
	"time"
)

// Device grants exclusive access to an audio input.
type Device interface {
	Open(ctx context.Context, f Format) (InputStream, error)
}

// InputStream delivers captured PCM. Read blocks until the next chunk is
// available and fails once the stream is closed.
type InputStream interface {
	Read() ([]byte, error)
	Close() error
}

// Player renders a WAV buffer on an output device.
type Player interface {
	Play(ctx context.Context, wav []byte) (Playback, error)
}

// Playback is a transient handle on one play-through. Done is closed when
// playback ends on its own or after Stop.
type Playback interface {
	Done() <-chan struct{}
	Stop() error
}

// Ticker is the subset of time.Ticker the recorder uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
