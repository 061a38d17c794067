package vad

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Default loudness range mapped onto speech probabilities by [Energy].
const (
	DefaultFloorDBFS   = -60.0
	DefaultCeilingDBFS = -20.0
)

// Energy is a loudness-based VAD engine. A frame's RMS level in dBFS is
// mapped linearly from [FloorDBFS, CeilingDBFS] onto a probability in
// [0, 1]; speech starts above Config.SpeechThreshold and ends below
// Config.SilenceThreshold.
//
// It works well on the normalised, close-mic recordings used as cloning
// references. It is not a replacement for a model-based detector on noisy
// streams.
type Energy struct {
	FloorDBFS   float64
	CeilingDBFS float64
}

// NewEnergy returns an Energy engine with the default loudness range.
func NewEnergy() *Energy {
	return &Energy{FloorDBFS: DefaultFloorDBFS, CeilingDBFS: DefaultCeilingDBFS}
}

// NewSession implements [Engine].
func (e *Energy) NewSession(cfg Config) (SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e.CeilingDBFS <= e.FloorDBFS {
		return nil, fmt.Errorf("vad: energy ceiling %v dBFS must exceed floor %v dBFS", e.CeilingDBFS, e.FloorDBFS)
	}
	return &energySession{cfg: cfg, floor: e.FloorDBFS, ceil: e.CeilingDBFS}, nil
}

type energySession struct {
	cfg      Config
	floor    float64
	ceil     float64
	speaking bool
	closed   atomic.Bool
}

func (s *energySession) ProcessFrame(frame []float32) (Event, error) {
	if s.closed.Load() {
		return Event{}, ErrSessionClosed
	}
	if want := s.cfg.FrameSamples(); len(frame) != want {
		return Event{}, fmt.Errorf("vad: frame has %d samples, want %d", len(frame), want)
	}

	p := s.probability(RMSDBFS(frame))
	switch {
	case !s.speaking && p >= s.cfg.SpeechThreshold:
		s.speaking = true
		return Event{Type: SpeechStart, Probability: p}, nil
	case !s.speaking:
		return Event{Type: Silence, Probability: p}, nil
	case p < s.cfg.SilenceThreshold:
		s.speaking = false
		return Event{Type: SpeechEnd, Probability: p}, nil
	default:
		return Event{Type: SpeechContinue, Probability: p}, nil
	}
}

func (s *energySession) probability(db float64) float64 {
	p := (db - s.floor) / (s.ceil - s.floor)
	return min(max(p, 0), 1)
}

func (s *energySession) Reset() { s.speaking = false }

func (s *energySession) Close() error {
	s.closed.Store(true)
	return nil
}

// RMSDBFS returns the root-mean-square level of samples in dBFS. Digital
// silence yields -Inf.
func RMSDBFS(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

var _ Engine = (*Energy)(nil)
