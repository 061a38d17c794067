// Package types defines the shared data types used across all voxclone packages.
//
// These types form the lingua franca between the reference-audio preprocessor,
// the three model providers (encoder, synthesizer, vocoder) and the pipeline
// orchestrator. Each package defines its own domain types, but data that flows
// between stages lives here to avoid circular imports.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Waveform is a mono audio signal as normalised float32 samples in [-1, 1].
type Waveform struct {
	// Samples holds one value per sample; there is no channel interleaving.
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for the encoder, 16000 or 22050 for the
	// synthesizer/vocoder pair).
	SampleRate int
}

// Len returns the number of samples in w.
func (w Waveform) Len() int { return len(w.Samples) }

// Duration returns the playback length of w. It returns 0 when the sample
// rate is not set.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// PadSilence returns a copy of w with n zero-valued samples appended.
// The receiver is not modified. A non-positive n returns a plain copy.
func (w Waveform) PadSilence(n int) Waveform {
	if n < 0 {
		n = 0
	}
	out := make([]float32, len(w.Samples)+n)
	copy(out, w.Samples)
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}

// ReferenceAudio is the decoded and preprocessed voice sample of the speaker
// to be cloned. It is immutable once loaded.
type ReferenceAudio struct {
	// Path is the file the audio was read from.
	Path string

	// Waveform is the preprocessed mono signal at the encoder's sample rate.
	Waveform Waveform
}

// SpeakerEmbedding is a fixed-length vector capturing a speaker's vocal
// identity. For a fixed input and fixed models the values are deterministic.
type SpeakerEmbedding []float32

// Dim returns the dimensionality of e.
func (e SpeakerEmbedding) Dim() int { return len(e) }

// Clone returns an independent copy of e.
func (e SpeakerEmbedding) Clone() SpeakerEmbedding {
	if e == nil {
		return nil
	}
	out := make(SpeakerEmbedding, len(e))
	copy(out, e)
	return out
}

// Equal reports whether e and other hold bit-identical values.
func (e SpeakerEmbedding) Equal(other SpeakerEmbedding) bool {
	if len(e) != len(other) {
		return false
	}
	for i := range e {
		if e[i] != other[i] {
			return false
		}
	}
	return true
}

// ErrEmptyText is returned by [SynthesisRequest.Validate] when the request
// carries no text to synthesize.
var ErrEmptyText = errors.New("types: synthesis text is empty")

// ErrNoEmbeddings is returned by [SynthesisRequest.Validate] when the request
// carries no speaker embedding.
var ErrNoEmbeddings = errors.New("types: synthesis request has no speaker embeddings")

// SynthesisRequest pairs the text of one utterance with the speaker
// embeddings it should be spoken with.
type SynthesisRequest struct {
	Text       string
	Embeddings []SpeakerEmbedding
}

// Validate checks that r can be submitted to a synthesizer: the text must be
// non-blank and all embeddings must share one non-zero dimension.
func (r SynthesisRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if len(r.Embeddings) == 0 {
		return ErrNoEmbeddings
	}
	dim := r.Embeddings[0].Dim()
	if dim == 0 {
		return errors.New("types: speaker embedding 0 is empty")
	}
	for i, e := range r.Embeddings[1:] {
		if e.Dim() != dim {
			return fmt.Errorf("types: speaker embedding %d has dimension %d, want %d", i+1, e.Dim(), dim)
		}
	}
	return nil
}

// Batch returns the parallel text and embedding slices submitted to a
// synthesizer. The text is repeated once per embedding so both slices always
// have the same length.
func (r SynthesisRequest) Batch() ([]string, []SpeakerEmbedding) {
	texts := make([]string, len(r.Embeddings))
	for i := range texts {
		texts[i] = r.Text
	}
	embeds := make([]SpeakerEmbedding, len(r.Embeddings))
	copy(embeds, r.Embeddings)
	return texts, embeds
}

// MelSpectrogram is the intermediate time-frequency representation produced
// by the synthesizer and consumed by the vocoder. Data is stored row-major,
// one row of Bins values per frame.
type MelSpectrogram struct {
	Frames int
	Bins   int
	Data   []float32

	// SampleRate is the audio rate the spectrogram was computed for.
	SampleRate int
}

// Validate checks that the shape of m matches its data.
func (m MelSpectrogram) Validate() error {
	if m.Frames <= 0 || m.Bins <= 0 {
		return fmt.Errorf("types: mel spectrogram has invalid shape %dx%d", m.Frames, m.Bins)
	}
	if len(m.Data) != m.Frames*m.Bins {
		return fmt.Errorf("types: mel spectrogram data length %d does not match shape %dx%d", len(m.Data), m.Frames, m.Bins)
	}
	return nil
}
