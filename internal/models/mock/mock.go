// Package mock provides a test double for the models.Backend interface.
//
// Backend hands out the configured provider mocks and records the paths it
// was asked to load, in call order.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/internal/models"
	"github.com/MrWong99/voxclone/pkg/provider/encoder"
	encmock "github.com/MrWong99/voxclone/pkg/provider/encoder/mock"
	"github.com/MrWong99/voxclone/pkg/provider/synthesizer"
	synmock "github.com/MrWong99/voxclone/pkg/provider/synthesizer/mock"
	"github.com/MrWong99/voxclone/pkg/provider/vocoder"
	vocmock "github.com/MrWong99/voxclone/pkg/provider/vocoder/mock"
)

// LoadCall records one Load* invocation.
type LoadCall struct {
	// Kind is "encoder", "synthesizer" or "vocoder".
	Kind string
	// Path is the artifact path passed to the loader.
	Path string
}

// Backend is a mock implementation of models.Backend.
type Backend struct {
	mu sync.Mutex

	// --- Configurable responses ---

	Encoder     *encmock.Provider
	Synthesizer *synmock.Provider
	Vocoder     *vocmock.Provider

	// EncoderErr, SynthesizerErr and VocoderErr are returned by the
	// respective loader when non-nil.
	EncoderErr     error
	SynthesizerErr error
	VocoderErr     error

	// --- Call records ---

	// Calls records every load call in order.
	Calls []LoadCall
}

// NewBackend returns a Backend with ready-to-use provider mocks: a
// 4-dimensional 16 kHz encoder, a 16 kHz synthesizer and a vocoder that
// returns 8000 samples.
func NewBackend() *Backend {
	return &Backend{
		Encoder: &encmock.Provider{
			EmbedResult:     []float32{0.1, 0.2, 0.3, 0.4},
			DimensionsValue: 4,
			SampleRateValue: 16000,
			ModelIDValue:    "mock-encoder",
		},
		Synthesizer: &synmock.Provider{SampleRateValue: 16000, ModelIDValue: "mock-synthesizer"},
		Vocoder:     &vocmock.Provider{Samples: make([]float32, 8000), ModelIDValue: "mock-vocoder"},
	}
}

func (b *Backend) record(kind, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, LoadCall{Kind: kind, Path: path})
}

// LoadEncoder records the call and returns Encoder or EncoderErr.
func (b *Backend) LoadEncoder(_ context.Context, path string) (encoder.Provider, error) {
	b.record("encoder", path)
	if b.EncoderErr != nil {
		return nil, b.EncoderErr
	}
	return b.Encoder, nil
}

// LoadSynthesizer records the call and returns Synthesizer or SynthesizerErr.
func (b *Backend) LoadSynthesizer(_ context.Context, dir string) (synthesizer.Provider, error) {
	b.record("synthesizer", dir)
	if b.SynthesizerErr != nil {
		return nil, b.SynthesizerErr
	}
	return b.Synthesizer, nil
}

// LoadVocoder records the call and returns Vocoder or VocoderErr.
func (b *Backend) LoadVocoder(_ context.Context, path string) (vocoder.Provider, error) {
	b.record("vocoder", path)
	if b.VocoderErr != nil {
		return nil, b.VocoderErr
	}
	return b.Vocoder, nil
}

// CallCount returns the number of recorded load calls. Thread-safe.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Calls)
}

// Ensure Backend implements models.Backend at compile time.
var _ models.Backend = (*Backend)(nil)
