package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// StateCookieName carries the OAuth state between start and callback
const StateCookieName = "modboard_oauth_state"

// ErrStateMismatch is returned when the callback state does not match the browser's
var ErrStateMismatch = errors.New("oauth state mismatch")

// StateStore persists single-use OAuth states
type StateStore interface {
	CreateOAuthState(ctx context.Context, state *models.OAuthState) error
	ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error)
}

// StateManager handles OAuth state generation and validation
type StateManager struct {
	store   StateStore
	cookies *CookieCodec
	expiry  time.Duration
}

// NewStateManager creates a new state manager
func NewStateManager(store StateStore, secret string, expiry time.Duration, secure bool) *StateManager {
	return &StateManager{
		store:   store,
		cookies: NewCookieCodec(secret, expiry, secure),
		expiry:  expiry,
	}
}

// GenerateState generates a cryptographically secure random state
func (sm *StateManager) GenerateState() (string, error) {
	// Generate 32 random bytes
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}

	// Encode to base64 URL-safe string
	return base64.URLEncoding.EncodeToString(b), nil
}

// StoreState stores a state in the database with an expiry time
func (sm *StateManager) StoreState(ctx context.Context, state string) error {
	oauthState := &models.OAuthState{
		State:     state,
		ExpiresAt: time.Now().UTC().Add(sm.expiry),
	}

	if err := sm.store.CreateOAuthState(ctx, oauthState); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}

	return nil
}

// ValidateState validates and deletes a state (single-use)
func (sm *StateManager) ValidateState(ctx context.Context, state string) error {
	if _, err := sm.store.ValidateAndDeleteOAuthState(ctx, state); err != nil {
		return fmt.Errorf("state validation failed: %w", err)
	}
	return nil
}

// Issue creates a stored state and binds it to the browser with a signed cookie
func (sm *StateManager) Issue(ctx context.Context, w http.ResponseWriter) (string, error) {
	state, err := sm.GenerateState()
	if err != nil {
		return "", err
	}

	if err := sm.StoreState(ctx, state); err != nil {
		return "", err
	}

	if err := sm.cookies.Set(w, StateCookieName, state); err != nil {
		return "", err
	}

	return state, nil
}

// Verify checks the callback state against the browser cookie and consumes it.
// The cookie is cleared whatever the outcome.
func (sm *StateManager) Verify(ctx context.Context, w http.ResponseWriter, r *http.Request, state string) error {
	defer sm.cookies.Clear(w, StateCookieName)

	if state == "" {
		return fmt.Errorf("%w: missing state", ErrStateMismatch)
	}

	bound, err := sm.cookies.Get(r, StateCookieName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateMismatch, err)
	}
	if bound != state {
		return ErrStateMismatch
	}

	return sm.ValidateState(ctx, state)
}
