package main

import "sync"

// SessionManager tracks live sessions so they can be closed on shutdown.
type SessionManager struct {
	sessions map[string]*LiveSession
	mu       sync.RWMutex
}

// NewSessionManager creates an empty registry
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*LiveSession)}
}

// AddIfAbsent registers s unless another session already holds its ID.
// It reports whether s was registered.
func (m *SessionManager) AddIfAbsent(s *LiveSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return false
	}
	m.sessions[s.ID] = s
	return true
}

// Remove forgets s. A different session registered under the same ID is
// left alone.
func (m *SessionManager) Remove(s *LiveSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
}

// Get returns the session with the given ID
func (m *SessionManager) Get(id string) *LiveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of registered sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every registered session and waits for each to finish.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*LiveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *LiveSession) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
