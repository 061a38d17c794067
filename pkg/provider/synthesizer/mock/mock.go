// Package mock provides a test double for the synthesizer.Provider interface.
//
// Provider enforces the batch-shape contract like a real backend, returns one
// pre-canned spectrogram per text, and records the texts and embeddings it
// was given.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/synthesizer"
	"github.com/MrWong99/voxclone/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Texts is a copy of the texts passed to Synthesize.
	Texts []string
	// Embeddings holds copies of the embeddings passed to Synthesize.
	Embeddings []types.SpeakerEmbedding
}

// Provider is a mock implementation of synthesizer.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Spectrogram is returned once per text by Synthesize. When its shape is
	// zero a 10x80 spectrogram of zeros is used.
	Spectrogram types.MelSpectrogram

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// Errs, when non-empty, is consumed one entry per call before
	// SynthesizeErr is considered. A nil entry means success for that call.
	Errs []error

	// SampleRateValue is returned by SampleRate.
	SampleRateValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order, including
	// calls rejected for a batch mismatch.
	SynthesizeCalls []SynthesizeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Synthesize records the call and returns one spectrogram per text.
func (p *Provider) Synthesize(ctx context.Context, texts []string, embeddings []types.SpeakerEmbedding) ([]types.MelSpectrogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := SynthesizeCall{Ctx: ctx, Texts: append([]string(nil), texts...)}
	for _, e := range embeddings {
		call.Embeddings = append(call.Embeddings, e.Clone())
	}
	p.SynthesizeCalls = append(p.SynthesizeCalls, call)

	if err := synthesizer.CheckBatch(texts, embeddings); err != nil {
		return nil, err
	}
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}

	mel := p.Spectrogram
	if mel.Frames == 0 || mel.Bins == 0 {
		mel = types.MelSpectrogram{Frames: 10, Bins: 80, Data: make([]float32, 800)}
	}
	if mel.SampleRate == 0 {
		mel.SampleRate = p.SampleRateValue
	}
	out := make([]types.MelSpectrogram, len(texts))
	for i := range out {
		out[i] = mel
	}
	return out, nil
}

// SampleRate returns SampleRateValue.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SampleRateValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Close records the call and returns CloseErr.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseErr
}

// SynthesizeCallCount returns the number of recorded Synthesize calls.
func (p *Provider) SynthesizeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements synthesizer.Provider at compile time.
var _ synthesizer.Provider = (*Provider)(nil)
