// Package encoder defines the Provider interface for speaker-encoder backends.
//
// A speaker encoder maps a preprocessed reference recording to a fixed-length
// embedding vector that captures the speaker's vocal identity. The vector is
// fed to the synthesizer alongside the text so that the generated speech
// sounds like the reference speaker.
package encoder

import (
	"context"

	"github.com/MrWong99/voxclone/pkg/types"
)

// Provider is the abstraction over any speaker-encoder backend.
//
// All embeddings returned by a single Provider share the same dimensionality
// (returned by Dimensions). For a fixed input and a fixed loaded model the
// returned values are deterministic.
type Provider interface {
	// Embed computes the speaker embedding for a preprocessed mono waveform.
	// The waveform must be at SampleRate(); callers are responsible for
	// resampling.
	Embed(ctx context.Context, wav types.Waveform) (types.SpeakerEmbedding, error)

	// Dimensions returns the fixed length of every embedding produced.
	Dimensions() int

	// SampleRate returns the input sample rate the model expects.
	SampleRate() int

	// ModelID returns an identifier for the loaded model, used in logs and
	// the status endpoint.
	ModelID() string

	// Close releases the loaded model.
	Close() error
}
