package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
	"github.com/parsascontentcorner/modboard/internal/testutil"
)

// memSessionStore is an in-memory SessionStore
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	err      error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]models.Session{}}
}

func (m *memSessionStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.Token] = *s
	return nil
}

func (m *memSessionStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[token]
	if !ok || s.IsExpired() {
		return nil, fmt.Errorf("session %w", models.ErrNotFound)
	}
	return &s, nil
}

func (m *memSessionStore) UpdateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; !ok {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}
	s.UpdatedAt = time.Now().UTC()
	m.sessions[s.Token] = *s
	return nil
}

func (m *memSessionStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return fmt.Errorf("session %w", models.ErrNotFound)
	}
	delete(m.sessions, token)
	return nil
}

func (m *memSessionStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func newTestSessionManager(store SessionStore) *SessionManager {
	return NewSessionManager(store, testutil.TestSessionKey, 24*time.Hour, false, zap.NewNop())
}

func TestEstablish_NewSession(t *testing.T) {
	store := newMemSessionStore()
	manager := newTestSessionManager(store)
	profile := testutil.GenerateProfile(testutil.TestUserID)

	rec := httptest.NewRecorder()
	session, err := manager.Establish(rec, httptest.NewRequest(http.MethodGet, "/", nil), &profile)

	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	testutil.AssertProfileEqual(t, profile, session.Profile)
	testutil.AssertTimeAlmostEqual(t, time.Now().UTC().Add(24*time.Hour), session.ExpiresAt, 5*time.Second)
	assert.Equal(t, 1, store.len())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.NotEqual(t, session.Token, cookies[0].Value, "cookie value is signed")

	loaded := manager.Load(replay(rec))
	require.NotNil(t, loaded)
	assert.Equal(t, session.Token, loaded.Token)
}

func TestEstablish_ReusesExistingSession(t *testing.T) {
	store := newMemSessionStore()
	manager := newTestSessionManager(store)
	profile := testutil.GenerateProfile(testutil.TestUserID)

	first := httptest.NewRecorder()
	original, err := manager.Establish(first, httptest.NewRequest(http.MethodGet, "/", nil), &profile)
	require.NoError(t, err)

	profile.Username = "renamed"
	second, err := manager.Establish(httptest.NewRecorder(), replay(first), &profile)

	require.NoError(t, err)
	assert.Equal(t, original.Token, second.Token)
	assert.Equal(t, 1, store.len())

	loaded := manager.Load(replay(first))
	require.NotNil(t, loaded)
	assert.Equal(t, "renamed", loaded.Profile.Username)
}

func TestEstablish_StoreFailure(t *testing.T) {
	store := newMemSessionStore()
	store.err = errors.New("connection refused")
	manager := newTestSessionManager(store)
	profile := testutil.GenerateProfile(testutil.TestUserID)

	rec := httptest.NewRecorder()
	session, err := manager.Establish(rec, httptest.NewRequest(http.MethodGet, "/", nil), &profile)

	require.Error(t, err)
	assert.Nil(t, session)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoad_NoSession(t *testing.T) {
	store := newMemSessionStore()
	manager := newTestSessionManager(store)

	t.Run("no cookie", func(t *testing.T) {
		assert.Nil(t, manager.Load(httptest.NewRequest(http.MethodGet, "/", nil)))
	})

	t.Run("unsigned cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
		assert.Nil(t, manager.Load(req))
	})

	t.Run("expired session", func(t *testing.T) {
		expired := testutil.GenerateExpiredSession(testutil.GenerateProfile(testutil.TestUserID))
		store.sessions[expired.Token] = *expired

		rec := httptest.NewRecorder()
		require.NoError(t, manager.cookies.Set(rec, SessionCookieName, expired.Token))
		assert.Nil(t, manager.Load(replay(rec)))
	})

	t.Run("store failure", func(t *testing.T) {
		failing := newMemSessionStore()
		failing.err = errors.New("boom")
		m := newTestSessionManager(failing)

		rec := httptest.NewRecorder()
		require.NoError(t, m.cookies.Set(rec, SessionCookieName, "token"))
		assert.Nil(t, m.Load(replay(rec)))
	})
}

func TestDestroy(t *testing.T) {
	store := newMemSessionStore()
	manager := newTestSessionManager(store)
	profile := testutil.GenerateProfile(testutil.TestUserID)

	established := httptest.NewRecorder()
	_, err := manager.Establish(established, httptest.NewRequest(http.MethodGet, "/", nil), &profile)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, manager.Destroy(rec, replay(established)))

	assert.Equal(t, 0, store.len())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)

	// Destroying again, or without a cookie, is not an error
	require.NoError(t, manager.Destroy(httptest.NewRecorder(), replay(established)))
	require.NoError(t, manager.Destroy(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestMiddlewareAndRequireAuth(t *testing.T) {
	store := newMemSessionStore()
	manager := newTestSessionManager(store)
	profile := testutil.GenerateProfile(testutil.TestUserID)

	var seen *models.Session
	handler := manager.Middleware(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	t.Run("anonymous request is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guilds", nil))

		testutil.AssertJSONError(t, rec, http.StatusUnauthorized, "Unauthorized")
		assert.Nil(t, seen)
	})

	t.Run("session is attached to the context", func(t *testing.T) {
		established := httptest.NewRecorder()
		session, err := manager.Establish(established, httptest.NewRequest(http.MethodGet, "/", nil), &profile)
		require.NoError(t, err)

		req := replay(established)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, session.Token, seen.Token)
	})
}

func TestFromContext_Empty(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}
