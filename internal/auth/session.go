package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// SessionCookieName holds the signed session token
const SessionCookieName = "modboard_session"

// SessionStore persists sessions
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, token string) error
}

type sessionKey struct{}

// SessionManager binds profiles to browser sessions
type SessionManager struct {
	store   SessionStore
	cookies *CookieCodec
	expiry  time.Duration
	logger  *zap.Logger
}

// NewSessionManager creates a session manager whose cookies are signed with secret
func NewSessionManager(store SessionStore, secret string, expiry time.Duration, secure bool, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:   store,
		cookies: NewCookieCodec(secret, expiry, secure),
		expiry:  expiry,
		logger:  logger,
	}
}

// Load returns the valid session of the request, or nil when there is none
func (sm *SessionManager) Load(r *http.Request) *models.Session {
	token, err := sm.cookies.Get(r, SessionCookieName)
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			sm.logger.Debug("rejected session cookie", zap.Error(err))
		}
		return nil
	}

	session, err := sm.store.GetSession(r.Context(), token)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			sm.logger.Warn("failed to load session", zap.Error(err))
		}
		return nil
	}

	return session
}

// Establish stores profile in the request's existing session, or in a new one
func (sm *SessionManager) Establish(w http.ResponseWriter, r *http.Request, profile *models.Profile) (*models.Session, error) {
	expiresAt := time.Now().UTC().Add(sm.expiry)

	if session := sm.Load(r); session != nil {
		session.Profile = *profile
		session.ExpiresAt = expiresAt
		err := sm.store.UpdateSession(r.Context(), session)
		if err == nil {
			if err := sm.cookies.Set(w, SessionCookieName, session.Token); err != nil {
				return nil, err
			}
			return session, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		// expired between load and update; fall through to a new session
	}

	session := &models.Session{
		Token:     uuid.New().String(),
		Profile:   *profile,
		ExpiresAt: expiresAt,
	}

	if err := sm.store.CreateSession(r.Context(), session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := sm.cookies.Set(w, SessionCookieName, session.Token); err != nil {
		return nil, err
	}

	sm.logger.Info("session established",
		zap.String("discord_id", profile.ID),
		zap.Time("expires_at", expiresAt),
	)

	return session, nil
}

// Destroy deletes the request's session and expires its cookie
func (sm *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	defer sm.cookies.Clear(w, SessionCookieName)

	token, err := sm.cookies.Get(r, SessionCookieName)
	if err != nil {
		return nil
	}

	if err := sm.store.DeleteSession(r.Context(), token); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	return nil
}

// Middleware attaches the request's session, if any, to its context
func (sm *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := sm.Load(r); session != nil {
			r = r.WithContext(WithSession(r.Context(), session))
		}
		next.ServeHTTP(w, r)
	})
}

// WithSession returns a copy of ctx carrying session
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// FromContext returns the session attached by Middleware, or nil
func FromContext(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionKey{}).(*models.Session)
	return session
}

// RequireAuth answers 401 unless the request carries a session
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
