// Package oauth provides the HTTP handlers of the Discord login flow.
package oauth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/auth"
	"github.com/parsascontentcorner/modboard/internal/models"
)

// Authenticator turns an authorization code into a profile
type Authenticator interface {
	Authenticate(ctx context.Context, code string) (*models.Profile, error)
}

// AuthURLBuilder builds the provider authorization URL for a state
type AuthURLBuilder interface {
	GetAuthURL(state string) string
}

// Redirects are the browser destinations after the flow
type Redirects struct {
	Dashboard string
	Failure   string
}

// Handlers contains the /auth handlers
type Handlers struct {
	provider      AuthURLBuilder
	authenticator Authenticator
	states        *auth.StateManager
	sessions      *auth.SessionManager
	redirects     Redirects
	logger        *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	provider AuthURLBuilder,
	authenticator Authenticator,
	states *auth.StateManager,
	sessions *auth.SessionManager,
	redirects Redirects,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		provider:      provider,
		authenticator: authenticator,
		states:        states,
		sessions:      sessions,
		redirects:     redirects,
		logger:        logger,
	}
}

// StartHandler begins the authorization-code flow
func (h *Handlers) StartHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue(r.Context(), w)
	if err != nil {
		h.logger.Error("failed to issue oauth state", zap.Error(err))
		h.fail(w, r)
		return
	}

	http.Redirect(w, r, h.provider.GetAuthURL(state), http.StatusFound)
}

// CallbackHandler handles the OAuth callback from Discord
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Check for error from Discord
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("oauth error from discord",
			zap.String("error", errParam),
			zap.String("description", query.Get("error_description")),
		)
		h.fail(w, r)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.logger.Warn("oauth callback without code")
		h.fail(w, r)
		return
	}

	if err := h.states.Verify(r.Context(), w, r, query.Get("state")); err != nil {
		h.logger.Warn("oauth state rejected", zap.Error(err))
		h.fail(w, r)
		return
	}

	profile, err := h.authenticator.Authenticate(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to authenticate", zap.Error(err))
		h.fail(w, r)
		return
	}

	if _, err := h.sessions.Establish(w, r, profile); err != nil {
		h.logger.Error("failed to establish session",
			zap.String("discord_id", profile.ID),
			zap.Error(err),
		)
		h.fail(w, r)
		return
	}

	http.Redirect(w, r, h.redirects.Dashboard, http.StatusFound)
}

// LogoutHandler destroys the session and returns to the dashboard
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		h.logger.Error("failed to destroy session", zap.Error(err))
	}

	http.Redirect(w, r, h.redirects.Dashboard, http.StatusFound)
}

// UserHandler returns the session profile, or null when unauthenticated
func (h *Handlers) UserHandler(w http.ResponseWriter, r *http.Request) {
	var profile *models.Profile
	if session := auth.FromContext(r.Context()); session != nil {
		profile = &session.Profile
	}

	h.writeJSON(w, profile)
}

// CSRFHandler returns the anti-forgery token of the request
func (h *Handlers) CSRFHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"csrfToken": csrf.Token(r)})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.redirects.Failure, http.StatusFound)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
