package audio

import (
	"fmt"
	"math"
)

// BytesPerSample is fixed: capture and playback use signed 16-bit PCM.
const BytesPerSample = 2

// Format describes interleaved 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat matches the service's preferred input: 16 kHz mono.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// Validate checks the format is usable for capture.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// BytesPerSecond is the PCM data rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BytesPerSample
}

// PCM16ToSamples converts little-endian 16-bit PCM bytes to samples.
func PCM16ToSamples(pcmData []byte) ([]int16, error) {
	if len(pcmData)%BytesPerSample != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]int16, len(pcmData)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToPCM16 converts samples to little-endian 16-bit PCM bytes.
func SamplesToPCM16(samples []int16) []byte {
	pcmData := make([]byte, len(samples)*BytesPerSample)
	for i, sample := range samples {
		pcmData[i*2] = byte(sample)
		pcmData[i*2+1] = byte(sample >> 8)
	}
	return pcmData
}

// Concat joins captured chunks into one PCM buffer.
func Concat(chunks [][]byte) []byte {
	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}

	out := make([]byte, 0, size)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}

// DurationSeconds returns how long pcmData plays for in format f.
func DurationSeconds(pcmData []byte, f Format) float64 {
	if f.BytesPerSecond() == 0 {
		return 0
	}
	return float64(len(pcmData)) / float64(f.BytesPerSecond())
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
// Useful for detecting audio levels and silence
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// PeakAmplitude returns the largest absolute sample value.
func PeakAmplitude(samples []int16) int {
	peak := 0
	for _, sample := range samples {
		abs := int(sample)
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	return peak
}
