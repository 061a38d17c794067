// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful session. Each session keeps its own hysteresis state so that
// independent recordings can be processed without interfering.
//
// Detection is synchronous: ProcessFrame returns immediately with a result.
// The reference preprocessor uses it to find and drop long silences before
// the speaker encoder sees the audio.
package vad

import "fmt"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame is classified as
	// speech. Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ended. Must be ≤ SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64
}

// FrameSamples returns the number of samples in one frame.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// Validate reports whether c can be used to create a session.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("vad: invalid sample rate %d", c.SampleRate)
	case c.FrameSizeMs <= 0 || c.FrameSamples() == 0:
		return fmt.Errorf("vad: invalid frame size %d ms", c.FrameSizeMs)
	case c.SpeechThreshold < 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold %v out of range [0, 1]", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("vad: silence threshold %v must be in [0, %v]", c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single recording.
// It is an interface so that test code can supply mock implementations.
//
// A SessionHandle should not be shared between goroutines.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of float32 samples in [-1, 1] and
	// returns the detection result. The frame must contain exactly
	// Config.FrameSamples samples.
	ProcessFrame(frame []float32) (Event, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}

// Event is a voice activity detection result for a single frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// IsSpeech reports whether the frame belongs to a speech segment.
func (e Event) IsSpeech() bool {
	return e.Type == SpeechStart || e.Type == SpeechContinue
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns a human-readable name.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}
