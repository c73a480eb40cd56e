package assembler

import (
	"sync"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// Session is the per-client state of a run of generations. It remembers
// which ideas have already triggered a save so a repeated generation of
// the same idea does not write a second record.
type Session struct {
	Owner plan.Owner

	mu        sync.Mutex
	attempted map[string]struct{}
}

// NewSession creates a session whose plans are saved for owner.
func NewSession(owner plan.Owner) *Session {
	return &Session{Owner: owner, attempted: make(map[string]struct{})}
}

// claim marks idea as attempted and reports whether this was the first
// attempt.
func (s *Session) claim(idea string) bool {
	key := plan.NormalizeIdea(idea)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempted[key]; ok {
		return false
	}
	s.attempted[key] = struct{}{}
	return true
}

// Attempted reports whether a save was already attempted for idea.
func (s *Session) Attempted(idea string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attempted[plan.NormalizeIdea(idea)]
	return ok
}
