package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame
}

// DefaultVADConfig returns 20 ms frames for the format and a 200 ms hangover.
func DefaultVADConfig(f Format, threshold float64) *VADConfig {
	frame := f.SampleRate * f.Channels / 50
	if frame <= 0 {
		frame = 320
	}
	return &VADConfig{
		EnergyThreshold: threshold,
		SilenceFrames:   10,
		FrameSize:       frame,
	}
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig(DefaultFormat, 500.0)
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// Activity summarizes the voice content of a finished capture.
type Activity struct {
	RMS            float64
	Peak           int
	Frames         int
	SpeechFrames   int
	SpeechSegments int
}

// Silent reports whether no frame crossed the energy threshold.
func (a Activity) Silent() bool {
	return a.SpeechFrames == 0
}

// Analyze runs the detector over samples frame by frame.
func Analyze(samples []int16, config *VADConfig) Activity {
	v := NewVADDetector(config)
	activity := Activity{
		RMS:  CalculateRMS(samples),
		Peak: PeakAmplitude(samples),
	}

	size := v.config.FrameSize
	for start := 0; start < len(samples); start += size {
		end := start + size
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[start:end]
		_, started, _ := v.ProcessFrame(frame)
		activity.Frames++
		if started {
			activity.SpeechSegments++
		}
		if CalculateRMS(frame) > v.config.EnergyThreshold {
			activity.SpeechFrames++
		}
	}
	return activity
}

// DetectSilence detects if audio samples represent silence
// Uses a simple energy threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
