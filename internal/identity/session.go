package identity

import (
	"sync"
	"time"
)

// Session holds the principal for one interactive session.
// It is created with NewSession and torn down with Close; nothing is persisted.
type Session struct {
	mu              sync.RWMutex
	principal       Principal
	authenticatedAt time.Time
	closed          bool
	generation      uint64 // bumped by every logout
}

// NewSession returns an unauthenticated session.
func NewSession() *Session {
	return &Session{}
}

// Principal returns the cached principal, if any.
func (s *Session) Principal() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, s.principal != ""
}

// AuthenticatedAt returns when the current principal was obtained.
func (s *Session) AuthenticatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedAt
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close clears the principal and rejects further logins.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = ""
	s.authenticatedAt = time.Time{}
	s.closed = true
}

func (s *Session) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// set stores p unless the session was closed or logged out since gen was read.
func (s *Session) set(p Principal, at time.Time, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.generation != gen:
		return ErrLoggedOut
	}
	s.principal = p
	s.authenticatedAt = at
	return nil
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = ""
	s.authenticatedAt = time.Time{}
	s.generation++
}
