package browsy

import (
	"sort"
	"sync"
	"time"
)

// DefaultAgentID is used when a caller does not name an agent
const DefaultAgentID = "__default__"

// SessionStore maps agent ids to browsy session tokens. Each method is atomic
// and returns copies, so callers never share mutable state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns the agent's session, registering a pending one first
// if the agent has none.
func (s *SessionStore) GetOrCreate(agentID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[agentID]; ok {
		return *sess
	}

	sess := &Session{AgentID: agentID, CreatedAt: s.now()}
	s.sessions[agentID] = sess
	return *sess
}

// Get returns the agent's session if it exists
func (s *SessionStore) Get(agentID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Update records the token returned by browsy. Unknown agents get an entry.
func (s *SessionStore) Update(agentID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[agentID]
	if !ok {
		sess = &Session{AgentID: agentID, CreatedAt: s.now()}
		s.sessions[agentID] = sess
	}
	sess.Token = token
}

// Remove forgets the agent's session and reports whether one existed
func (s *SessionStore) Remove(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[agentID]; !ok {
		return false
	}
	delete(s.sessions, agentID)
	return true
}

// List returns all sessions ordered by creation time
func (s *SessionStore) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of tracked agents
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear removes every session
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}
