// Package mock provides a recording inject.Sender for unit tests.
package mock

import (
	"strings"
	"sync"

	"github.com/MrWong99/fnx/pkg/inject"
)

// Ensure Sender implements inject.Sender at compile time.
var _ inject.Sender = (*Sender)(nil)

// Sender records every chunk it is asked to send.
type Sender struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Send after the chunk is recorded.
	Err error

	chunks []string
}

// Send records chunk and returns Err.
func (s *Sender) Send(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return s.Err
}

// Chunks returns a copy of the recorded chunks. Thread-safe.
func (s *Sender) Chunks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

// Text returns all recorded chunks joined together. Thread-safe.
func (s *Sender) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "")
}

// Reset clears the recorded chunks. Thread-safe.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
}
