// Package models defines the records read from the store, the session profile
// and the closed result records of every dashboard view.
package models

import (
	"time"
)

// OAuthState represents a temporary OAuth state for CSRF protection
type OAuthState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the OAuth state has expired
func (s *OAuthState) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Session is an authenticated browser session keyed by an opaque token
type Session struct {
	Token     string    `json:"token"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Profile is the identity stored in a session once the OAuth flow succeeds
type Profile struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	Discriminator string         `json:"discriminator"`
	Avatar        string         `json:"avatar"`
	Guilds        []ProfileGuild `json:"guilds"`
}

// ProfileGuild is a guild the authenticated user belongs to
type ProfileGuild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Owner       bool     `json:"owner"`
	Permissions string   `json:"permissions"`
	Features    []string `json:"features"`
}
