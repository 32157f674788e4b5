package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVMimeType is the declared type of every finalized recording.
const WAVMimeType = "audio/wav"

const pcmFormatTag = 1

// EncodeWAV wraps 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcmData []byte, f Format) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	samples, err := PCM16ToSamples(pcmData)
	if err != nil {
		return nil, err
	}

	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}

	out := &memoryFile{}
	enc := wav.NewEncoder(out, f.SampleRate, 16, f.Channels, pcmFormatTag)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV extracts 16-bit PCM and its format from a WAV container.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to decode WAV data: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	return SamplesToPCM16(samples), f, nil
}

// memoryFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type memoryFile struct {
	buf []byte
	pos int
}

func (m *memoryFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memoryFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memoryFile) Bytes() []byte {
	return m.buf
}
