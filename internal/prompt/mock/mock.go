// Package mock provides a scripted prompt.Source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/internal/prompt"
)

// Source replays Lines in order, then returns prompt.ErrInputClosed.
type Source struct {
	mu sync.Mutex

	// Lines are returned one per Read call.
	Lines []string

	// Err, if non-nil, is returned instead of the next line.
	Err error

	// Questions records every question passed to Read.
	Questions []string
}

// Read implements prompt.Source.
func (s *Source) Read(_ context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Questions = append(s.Questions, question)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Lines) == 0 {
		return "", prompt.ErrInputClosed
	}
	line := s.Lines[0]
	s.Lines = s.Lines[1:]
	return line, nil
}

// ReadCount returns the number of Read calls. Thread-safe.
func (s *Source) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Questions)
}

var _ prompt.Source = (*Source)(nil)
