package session

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Store maps opaque session tokens to usernames. Sessions are in-memory and
// do not survive a restart; clients re-login.
type Store interface {
	Create(username string) string
	Resolve(token string) (string, bool)
	Destroy(token string)
}

// MemoryStore is the default Store backed by a map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

// Create issues a fresh token bound to username.
func (s *MemoryStore) Create(username string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.mu.Lock()
	s.sessions[token] = username
	s.mu.Unlock()
	return token
}

func (s *MemoryStore) Resolve(token string) (string, bool) {
	s.mu.RLock()
	username, ok := s.sessions[token]
	s.mu.RUnlock()
	return username, ok
}

func (s *MemoryStore) Destroy(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Token extracts the session id from the request: the X-Session-Id header
// wins, the session_id query parameter is the fallback.
func Token(c *gin.Context) string {
	if sid := c.GetHeader("X-Session-Id"); sid != "" {
		return sid
	}
	return c.Query("session_id")
}

// FromRequest resolves the request's session to a username. Empty string
// means not logged in.
func FromRequest(c *gin.Context, s Store) string {
	sid := Token(c)
	if sid == "" {
		return ""
	}
	username, _ := s.Resolve(sid)
	return username
}
