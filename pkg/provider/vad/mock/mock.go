// Package mock provides scripted VAD doubles for testing silence trimming.
package mock

import (
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/vad"
)

// Engine hands out Session, or a fresh silent [Session] when it is nil.
type Engine struct {
	mu sync.Mutex

	Session vad.SessionHandle
	Err     error

	// Configs holds the config of every NewSession call in order.
	Configs []vad.Config
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Session == nil {
		return &Session{}, nil
	}
	return e.Session, nil
}

// Session replays Events, one per frame, and reports silence once they run
// out.
type Session struct {
	mu sync.Mutex

	Events          []vad.Event
	ProcessFrameErr error

	Frames         int
	ResetCallCount int
	CloseCallCount int
}

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(_ []float32) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if s.Frames > len(s.Events) {
		return vad.Event{Type: vad.Silence}, nil
	}
	return s.Events[s.Frames-1], nil
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	s.ResetCallCount++
	s.mu.Unlock()
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	return nil
}

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)
