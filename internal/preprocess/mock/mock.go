// Package mock provides a test double for preprocess.Preprocessor.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/internal/preprocess"
	"github.com/MrWong99/voxclone/pkg/types"
)

// Preprocessor is a mock implementation of preprocess.Preprocessor.
type Preprocessor struct {
	mu sync.Mutex

	// Waveform is returned inside the ReferenceAudio for every path.
	Waveform types.Waveform

	// Err, if non-nil, is returned by Preprocess.
	Err error

	// Paths records every path passed to Preprocess.
	Paths []string
}

// Preprocess records path and returns Waveform or Err.
func (p *Preprocessor) Preprocess(_ context.Context, path string) (types.ReferenceAudio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Paths = append(p.Paths, path)
	if p.Err != nil {
		return types.ReferenceAudio{}, p.Err
	}
	return types.ReferenceAudio{Path: path, Waveform: p.Waveform}, nil
}

// CallCount returns the number of Preprocess calls. Thread-safe.
func (p *Preprocessor) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Paths)
}

var _ preprocess.Preprocessor = (*Preprocessor)(nil)
