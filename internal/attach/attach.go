// Package attach holds the files attached to a prompt and stages copies of
// them where the running agent can read them.
package attach

import (
	"log/slog"
	"sync"
)

// DefaultMax is the attachment capacity when none is configured.
const DefaultMax = 5

// Set is an ordered, capacity-bounded list of attachment paths. Identical
// paths may appear more than once.
type Set struct {
	mu    sync.Mutex
	max   int
	paths []string
}

// NewSet returns an empty set holding at most max paths; max <= 0 means
// DefaultMax.
func NewSet(max int) *Set {
	if max <= 0 {
		max = DefaultMax
	}
	return &Set{max: max}
}

// Add appends path and reports whether it fit.
func (s *Set) Add(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.paths) >= s.max {
		slog.Warn("attachment limit reached, dropping", "path", path, "max", s.max)
		return false
	}
	s.paths = append(s.paths, path)
	return true
}

// Remove drops the attachment at index i; out-of-range indexes are ignored.
func (s *Set) Remove(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.paths) {
		return
	}
	s.paths = append(s.paths[:i], s.paths[i+1:]...)
}

// Paths returns a copy of the paths in insertion order.
func (s *Set) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Len returns the number of attachments.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// Max returns the configured capacity.
func (s *Set) Max() int { return s.max }

// Clear empties the set. Called after a successful send only.
func (s *Set) Clear() {
	s.mu.Lock()
	s.paths = nil
	s.mu.Unlock()
}
