package client

import (
	"sync"

	"github.com/Kyz7/chainverse/internal/role"
)

// Session holds the in-memory access token of every surface. Refresh tokens
// never pass through it; they live in the HTTP-only cookies of the client's
// cookie jar.
type Session struct {
	mu     sync.RWMutex
	tokens map[role.Surface]string
}

func NewSession() *Session {
	return &Session{tokens: make(map[role.Surface]string)}
}

func (s *Session) Token(surface role.Surface) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[surface]
}

func (s *Session) SetToken(surface role.Surface, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[surface] = token
}

func (s *Session) Clear(surface role.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, surface)
}
