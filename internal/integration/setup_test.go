// Package integration exercises the assembled server against a PostgreSQL
// container and a mock Discord API.
package integration

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/api"
	"github.com/parsascontentcorner/modboard/internal/auth"
	"github.com/parsascontentcorner/modboard/internal/dashboard"
	"github.com/parsascontentcorner/modboard/internal/database"
	httpserver "github.com/parsascontentcorner/modboard/internal/http"
	"github.com/parsascontentcorner/modboard/internal/models"
	"github.com/parsascontentcorner/modboard/internal/oauth"
	"github.com/parsascontentcorner/modboard/internal/realtime"
	"github.com/parsascontentcorner/modboard/internal/testutil"
)

const eventsChannel = "dashboard_events"

// stack is a running server with its collaborators
type stack struct {
	db      *database.DB
	server  *httptest.Server
	discord *testutil.MockDiscordServer
	hub     *realtime.Hub
}

func newStack(t *testing.T) *stack {
	t.Helper()
	if testing.Short() {
		t.Skip("integration tests need docker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, dsn, cleanup, err := testutil.SetupTestDBWithURL(context.Background())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	logger := zap.NewNop()
	cfg := testutil.GenerateTestConfig()

	mockDiscord := testutil.NewMockDiscordServer()
	t.Cleanup(mockDiscord.Close)

	discordClient := auth.NewDiscordClient(&cfg.Discord, logger)
	discordClient.SetBaseURL(mockDiscord.Server.URL)

	states := auth.NewStateManager(db, cfg.Session.Secret, cfg.Session.StateExpiry(), false)
	sessions := auth.NewSessionManager(db, cfg.Session.Secret, cfg.Session.SessionExpiry(), false, logger)

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	listener := database.NewListener(dsn, eventsChannel, func(event *models.GuildEvent) {
		hub.Broadcast(event.GuildID, event.Event, event.Data)
	}, logger)
	go func() { _ = listener.Run(ctx) }()

	router := httpserver.NewRouter(
		httpserver.RouterConfig{AllowedOrigins: cfg.Security.AllowedOrigins},
		httpserver.Handlers{
			OAuth: oauth.NewHandlers(discordClient, auth.NewAuthenticator(discordClient, logger), states, sessions,
				oauth.Redirects{Dashboard: cfg.Server.DashboardURL, Failure: cfg.Server.AuthFailureURL}, logger),
			API:      api.NewHandlers(dashboard.NewService(db, logger, cfg.Database.QueryTimeout), db, logger),
			Sessions: sessions,
			Realtime: realtime.NewHandler(hub, cfg.Security.AllowedOrigins, logger),
		},
		logger,
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &stack{db: db, server: server, discord: mockDiscord, hub: hub}
}

// newBrowser returns a client that keeps cookies and does not follow redirects
func (s *stack) newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *stack) get(t *testing.T, browser *http.Client, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := browser.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// startLogin begins the flow and returns the state Discord would echo back
func (s *stack) startLogin(t *testing.T, browser *http.Client) string {
	t.Helper()
	resp := s.get(t, browser, "/auth/discord")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "discord.com", location.Host)

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// callback completes the flow and returns the redirect target
func (s *stack) callback(t *testing.T, browser *http.Client, code, state string) string {
	t.Helper()
	resp := s.get(t, browser, "/auth/discord/callback?code="+url.QueryEscape(code)+"&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

// login runs the whole flow for browser
func (s *stack) login(t *testing.T, browser *http.Client) {
	t.Helper()
	state := s.startLogin(t, browser)
	require.Equal(t, "http://localhost:3000", s.callback(t, browser, testutil.MockValidCode, state))
}

func (s *stack) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + path
}
