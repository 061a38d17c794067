// Package preprocess turns a reference recording on disk into the mono,
// loudness-normalised waveform the speaker encoder expects.
//
// The steps mirror the encoder's training preprocessing: decode, down-mix,
// resample to the encoder rate, normalise volume (increase only) and drop
// long silences found by a voice activity detector.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/vad"
	"github.com/MrWong99/voxclone/pkg/types"
)

// Sentinel errors.
var (
	// ErrUndecodable wraps every failure to decode the reference file.
	ErrUndecodable = errors.New("preprocess: reference audio could not be decoded")

	// ErrSilent is returned when nothing audible remains after preprocessing.
	ErrSilent = errors.New("preprocess: reference audio is silent")
)

// Defaults used by [New].
const (
	DefaultSampleRate = 16000
	DefaultTargetDBFS = -30.0

	defaultWindowMs     = 30
	defaultAverageWidth = 8
	defaultMaxSilence   = 6
)

// Preprocessor loads and conditions reference audio.
type Preprocessor interface {
	Preprocess(ctx context.Context, path string) (types.ReferenceAudio, error)
}

// Option configures a [Reference].
type Option func(*Reference)

// WithSampleRate sets the output sample rate. Non-positive values are ignored.
func WithSampleRate(rate int) Option {
	return func(r *Reference) {
		if rate > 0 {
			r.sampleRate = rate
		}
	}
}

// WithTargetDBFS sets the loudness the waveform is raised to.
func WithTargetDBFS(db float64) Option {
	return func(r *Reference) { r.targetDBFS = db }
}

// WithTrimSilence enables or disables long-silence removal.
func WithTrimSilence(enabled bool) Option {
	return func(r *Reference) { r.trim = enabled }
}

// WithVAD replaces the default energy detector.
func WithVAD(e vad.Engine) Option {
	return func(r *Reference) { r.vad = e }
}

// WithDecoder replaces the default native-only decoder.
func WithDecoder(d *audio.Decoder) Option {
	return func(r *Reference) { r.decoder = d }
}

// Reference is the default [Preprocessor].
type Reference struct {
	decoder    *audio.Decoder
	vad        vad.Engine
	sampleRate int
	targetDBFS float64
	trim       bool
}

// New returns a Reference with 16 kHz output, -30 dBFS normalisation and
// silence trimming enabled.
func New(opts ...Option) *Reference {
	r := &Reference{
		decoder:    &audio.Decoder{},
		vad:        vad.NewEnergy(),
		sampleRate: DefaultSampleRate,
		targetDBFS: DefaultTargetDBFS,
		trim:       true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SampleRate returns the rate of the waveforms produced by Preprocess.
func (r *Reference) SampleRate() int { return r.sampleRate }

// Preprocess implements [Preprocessor]. A missing file yields an error
// matching [os.ErrNotExist]; any decode failure matches [ErrUndecodable].
func (r *Reference) Preprocess(ctx context.Context, path string) (types.ReferenceAudio, error) {
	if _, err := os.Stat(path); err != nil {
		return types.ReferenceAudio{}, fmt.Errorf("preprocess: %w", err)
	}

	clip, err := r.decoder.Decode(ctx, path)
	if err != nil {
		return types.ReferenceAudio{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	w := clip.Mono()

	w, err = audio.Resample(w, r.sampleRate)
	if err != nil {
		return types.ReferenceAudio{}, fmt.Errorf("preprocess: %w", err)
	}

	w, err = Normalize(w, r.targetDBFS)
	if err != nil {
		return types.ReferenceAudio{}, fmt.Errorf("preprocess: %q: %w", path, err)
	}

	if r.trim {
		before := w.Duration()
		w, err = TrimLongSilences(w, r.vad)
		if err != nil {
			return types.ReferenceAudio{}, fmt.Errorf("preprocess: %q: %w", path, err)
		}
		slog.Debug("trimmed reference silences", "path", path, "before", before, "after", w.Duration())
	}
	if w.Len() == 0 {
		return types.ReferenceAudio{}, fmt.Errorf("preprocess: %q: %w", path, ErrSilent)
	}

	slog.Info("reference audio preprocessed",
		"path", path,
		"source_rate", clip.SampleRate,
		"channels", clip.Channels,
		"duration", w.Duration(),
	)
	return types.ReferenceAudio{Path: path, Waveform: w}, nil
}

// Normalize scales w so its RMS level reaches targetDBFS. Quieter input is
// raised; louder input is returned unchanged. A silent waveform yields
// [ErrSilent].
func Normalize(w types.Waveform, targetDBFS float64) (types.Waveform, error) {
	db := vad.RMSDBFS(w.Samples)
	if math.IsInf(db, -1) {
		return types.Waveform{}, ErrSilent
	}
	change := targetDBFS - db
	if change <= 0 {
		return w, nil
	}
	gain := float32(math.Pow(10, change/20))
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s * gain
	}
	return types.Waveform{Samples: out, SampleRate: w.SampleRate}, nil
}

var _ Preprocessor = (*Reference)(nil)
