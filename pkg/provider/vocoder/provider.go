// Package vocoder defines the Provider interface for spectrogram-to-waveform
// backends.
package vocoder

import (
	"context"

	"github.com/MrWong99/voxclone/pkg/types"
)

// Provider is the abstraction over any neural vocoder.
type Provider interface {
	// Vocode reconstructs a mono waveform from mel. The returned waveform is
	// at the sample rate of the synthesizer that produced mel.
	Vocode(ctx context.Context, mel types.MelSpectrogram) (types.Waveform, error)

	// ModelID returns an identifier for the loaded model.
	ModelID() string

	// Close releases the loaded model.
	Close() error
}
