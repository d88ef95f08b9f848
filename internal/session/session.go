// Package session holds the authenticated user identity for the lifetime
// of a client run. It replaces ambient credential lookups: the session is
// populated once after login (or from configuration) and passed explicitly
// to the components that need it.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Session carries the bearer token and the user it belongs to.
type Session struct {
	mu     sync.RWMutex
	userID uuid.UUID
	token  string
}

// New returns an empty, unauthenticated session.
func New() *Session {
	return &Session{}
}

// Populate stores the credential after a successful login.
func (s *Session) Populate(userID uuid.UUID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.token = token
}

// Clear drops the credential, returning the session to its logged-out state.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = uuid.Nil
	s.token = ""
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the authenticated user's id, or uuid.Nil when logged out.
func (s *Session) UserID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Authenticated reports whether the session carries a usable credential.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.userID != uuid.Nil
}
