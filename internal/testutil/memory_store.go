package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// MemoryStore keeps OAuth states and sessions in memory. It satisfies the
// state and session store interfaces of the auth package.
type MemoryStore struct {
	mu       sync.Mutex
	states   map[string]models.OAuthState
	sessions map[string]models.Session

	// SessionErr, when set, fails every session write
	SessionErr error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:   map[string]models.OAuthState{},
		sessions: map[string]models.Session{},
	}
}

// CreateOAuthState stores state
func (m *MemoryStore) CreateOAuthState(_ context.Context, state *models.OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.State] = *state
	return nil
}

// ValidateAndDeleteOAuthState consumes state
func (m *MemoryStore) ValidateAndDeleteOAuthState(_ context.Context, state string) (*models.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, errors.New("invalid state: not found")
	}
	delete(m.states, state)
	if s.IsExpired() {
		return nil, errors.New("state has expired")
	}
	return &s, nil
}

// CreateSession stores session
func (m *MemoryStore) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessionErr != nil {
		return m.SessionErr
	}
	m.sessions[session.Token] = *session
	return nil
}

// GetSession returns the unexpired session for token
func (m *MemoryStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || s.IsExpired() {
		return nil, fmt.Errorf("session %w", models.ErrNotFound)
	}
	return &s, nil
}

// UpdateSession replaces an existing session
func (m *MemoryStore) UpdateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SessionErr != nil {
		return m.SessionErr
	}
	if _, ok := m.sessions[session.Token]; !ok {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}
	m.sessions[session.Token] = *session
	return nil
}

// DeleteSession removes the session for token
func (m *MemoryStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}
	delete(m.sessions, token)
	return nil
}

// HasState reports whether state is stored and unconsumed
func (m *MemoryStore) HasState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[state]
	return ok
}

// StateCount returns the number of stored states
func (m *MemoryStore) StateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// SessionCount returns the number of stored sessions
func (m *MemoryStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
