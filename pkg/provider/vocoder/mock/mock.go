// Package mock provides a test double for the vocoder.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/vocoder"
	"github.com/MrWong99/voxclone/pkg/types"
)

// VocodeCall records a single invocation of Vocode.
type VocodeCall struct {
	// Ctx is the context passed to Vocode.
	Ctx context.Context
	// Mel is the spectrogram passed to Vocode.
	Mel types.MelSpectrogram
}

// Provider is a mock implementation of vocoder.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Samples is returned (as a copy) as the waveform of every successful
	// Vocode call.
	Samples []float32

	// SampleRateValue is the sample rate of the returned waveform. When zero
	// the spectrogram's sample rate is used.
	SampleRateValue int

	// VocodeErr, if non-nil, is returned as the error from Vocode.
	VocodeErr error

	// Errs, when non-empty, is consumed one entry per call before VocodeErr
	// is considered. A nil entry means success for that call.
	Errs []error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// CloseErr is returned by Close.
	CloseErr error

	// --- Call records ---

	// VocodeCalls records every call to Vocode in order.
	VocodeCalls []VocodeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Vocode records the call and returns the configured waveform.
func (p *Provider) Vocode(ctx context.Context, mel types.MelSpectrogram) (types.Waveform, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VocodeCalls = append(p.VocodeCalls, VocodeCall{Ctx: ctx, Mel: mel})

	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return types.Waveform{}, err
		}
	} else if p.VocodeErr != nil {
		return types.Waveform{}, p.VocodeErr
	}

	rate := p.SampleRateValue
	if rate == 0 {
		rate = mel.SampleRate
	}
	samples := make([]float32, len(p.Samples))
	copy(samples, p.Samples)
	return types.Waveform{Samples: samples, SampleRate: rate}, nil
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

// VocodeCallCount returns the number of recorded Vocode calls.
func (p *Provider) VocodeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.VocodeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.VocodeCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements vocoder.Provider at compile time.
var _ vocoder.Provider = (*Provider)(nil)
