// Package mock provides a test double for the encoder.Provider interface.
//
// Use Provider to return pre-canned speaker embeddings without a live model
// and to verify how often and with which waveform the encoder was invoked.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResult:     types.SpeakerEmbedding{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	}
//	e, _ := p.Embed(ctx, wav)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/encoder"
	"github.com/MrWong99/voxclone/pkg/types"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Waveform is the waveform passed to Embed.
	Waveform types.Waveform
}

// Provider is a mock implementation of encoder.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedFunc, if set, computes the result of Embed and takes precedence
	// over EmbedResult and EmbedErr.
	EmbedFunc func(types.Waveform) (types.SpeakerEmbedding, error)

	// EmbedResult is returned (as a copy) by Embed.
	EmbedResult types.SpeakerEmbedding

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// SampleRateValue is returned by SampleRate.
	SampleRateValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Embed records the call and returns the configured embedding.
func (p *Provider) Embed(ctx context.Context, wav types.Waveform) (types.SpeakerEmbedding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Waveform: wav})
	if p.EmbedFunc != nil {
		return p.EmbedFunc(wav)
	}
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.EmbedResult.Clone(), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
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

// EmbedCallCount returns the number of recorded Embed calls. Thread-safe.
func (p *Provider) EmbedCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements encoder.Provider at compile time.
var _ encoder.Provider = (*Provider)(nil)
