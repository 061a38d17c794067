// Package synthesizer defines the Provider interface for text-to-spectrogram
// backends.
//
// A synthesizer turns a batch of texts, each paired with a speaker embedding,
// into mel spectrograms. Batches are positional: texts[i] is spoken with
// embeddings[i] and produces the i-th spectrogram of the result.
package synthesizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxclone/pkg/types"
)

// ErrBatchMismatch is returned when the text and embedding slices of a batch
// have different lengths, or a backend returns the wrong number of results.
var ErrBatchMismatch = errors.New("synthesizer: batch size mismatch")

// Provider is the abstraction over any text-to-spectrogram backend.
type Provider interface {
	// Synthesize produces one spectrogram per (text, embedding) pair.
	// len(texts) must equal len(embeddings); otherwise ErrBatchMismatch is
	// returned without contacting the backend.
	Synthesize(ctx context.Context, texts []string, embeddings []types.SpeakerEmbedding) ([]types.MelSpectrogram, error)

	// SampleRate returns the audio sample rate of the model family. The
	// vocoded output and the written WAV file use this rate.
	SampleRate() int

	// ModelID returns an identifier for the loaded model.
	ModelID() string

	// Close releases the loaded model.
	Close() error
}

// CheckBatch validates the shape of a synthesis batch. Implementations call it
// before doing any work.
func CheckBatch(texts []string, embeddings []types.SpeakerEmbedding) error {
	if len(texts) != len(embeddings) {
		return fmt.Errorf("%w: %d texts, %d embeddings", ErrBatchMismatch, len(texts), len(embeddings))
	}
	if len(texts) == 0 {
		return fmt.Errorf("%w: empty batch", ErrBatchMismatch)
	}
	return nil
}
