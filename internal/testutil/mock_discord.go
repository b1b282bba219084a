package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// Codes and tokens understood by the mock Discord API
const (
	MockValidCode        = "valid_code"
	MockGuildsFailCode   = "guilds_fail_code"
	MockAccessToken      = "mock_access_token_123"
	MockGuildsFailToken  = "mock_guilds_fail_token"
	MockDiscordUserID    = "123456789012345678"
	MockDiscordUsername  = "TestUser"
	MockDiscordGuildName = "Test Guild"
)

// MockDiscordServer represents a mock Discord API server for testing.
type MockDiscordServer struct {
	Server     *httptest.Server
	tokenCalls atomic.Int32
	userCalls  atomic.Int32
	guildCalls atomic.Int32
}

// DiscordTokenResponse represents the OAuth token response from Discord.
type DiscordTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// DiscordUserResponse represents the user info response from Discord.
type DiscordUserResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}

// DiscordGuildResponse represents one entry of the user guilds response.
type DiscordGuildResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Owner       bool     `json:"owner"`
	Permissions string   `json:"permissions"`
	Features    []string `json:"features"`
}

// DiscordErrorResponse represents an error response from Discord.
type DiscordErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewMockDiscordServer creates a new mock Discord API server.
// The server handles token exchange, user info and user guilds endpoints;
// point a DiscordClient at it with SetBaseURL(mock.Server.URL).
func NewMockDiscordServer() *MockDiscordServer {
	mds := &MockDiscordServer{}

	mux := http.NewServeMux()

	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		mds.tokenCalls.Add(1)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Simulate different responses based on the code
		switch r.FormValue("code") {
		case MockValidCode:
			writeJSON(w, http.StatusOK, DiscordTokenResponse{
				AccessToken:  MockAccessToken,
				TokenType:    "Bearer",
				ExpiresIn:    604800,
				RefreshToken: "mock_refresh_token_456",
				Scope:        "identify guilds",
			})

		case MockGuildsFailCode:
			writeJSON(w, http.StatusOK, DiscordTokenResponse{
				AccessToken: MockGuildsFailToken,
				TokenType:   "Bearer",
				ExpiresIn:   604800,
				Scope:       "identify guilds",
			})

		case "server_error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Internal Server Error"))

		default:
			writeJSON(w, http.StatusBadRequest, DiscordErrorResponse{
				Error:            "invalid_grant",
				ErrorDescription: "Invalid authorization code",
			})
		}
	})

	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		mds.userCalls.Add(1)

		switch bearerToken(r) {
		case MockAccessToken, MockGuildsFailToken:
			writeJSON(w, http.StatusOK, DiscordUserResponse{
				ID:            MockDiscordUserID,
				Username:      MockDiscordUsername,
				Discriminator: "0",
				Avatar:        "avatar_hash_123",
			})

		default:
			writeJSON(w, http.StatusUnauthorized, DiscordErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "Invalid token",
			})
		}
	})

	mux.HandleFunc("/users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		mds.guildCalls.Add(1)

		switch bearerToken(r) {
		case MockAccessToken:
			w.Header().Set("X-RateLimit-Limit", "5")
			w.Header().Set("X-RateLimit-Remaining", "4")
			writeJSON(w, http.StatusOK, []DiscordGuildResponse{
				{ID: TestGuildID, Name: MockDiscordGuildName, Owner: true, Permissions: "8", Features: []string{}},
				{ID: OtherGuildID, Name: "Other Guild", Permissions: "0", Features: []string{"COMMUNITY"}},
			})

		case MockGuildsFailToken:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Internal Server Error"))

		default:
			writeJSON(w, http.StatusUnauthorized, DiscordErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "Invalid token",
			})
		}
	})

	mds.Server = httptest.NewServer(mux)
	return mds
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// Close closes the mock server.
func (mds *MockDiscordServer) Close() {
	if mds.Server != nil {
		mds.Server.Close()
	}
}

// TokenCalls returns the number of token exchange requests received.
func (mds *MockDiscordServer) TokenCalls() int { return int(mds.tokenCalls.Load()) }

// UserInfoCalls returns the number of user info requests received.
func (mds *MockDiscordServer) UserInfoCalls() int { return int(mds.userCalls.Load()) }

// GuildCalls returns the number of user guilds requests received.
func (mds *MockDiscordServer) GuildCalls() int { return int(mds.guildCalls.Load()) }

// ResetCallCounts resets the call counters.
func (mds *MockDiscordServer) ResetCallCounts() {
	mds.tokenCalls.Store(0)
	mds.userCalls.Store(0)
	mds.guildCalls.Store(0)
}
