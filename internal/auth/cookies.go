package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// CookieCodec writes and reads HMAC-SHA256 signed cookies
type CookieCodec struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

// NewCookieCodec creates a codec keyed by secret whose cookies expire after maxAge
func NewCookieCodec(secret string, maxAge time.Duration, secure bool) *CookieCodec {
	codec := securecookie.New([]byte(secret), nil)
	codec.MaxAge(int(maxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &CookieCodec{
		codec:  codec,
		maxAge: maxAge,
		secure: secure,
	}
}

// Set signs value and writes it as cookie name
func (c *CookieCodec) Set(w http.ResponseWriter, name, value string) error {
	encoded, err := c.codec.Encode(name, value)
	if err != nil {
		return fmt.Errorf("failed to encode cookie %s: %w", name, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		Expires:  time.Now().Add(c.maxAge),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Get returns the verified value of cookie name
func (c *CookieCodec) Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}

	var value string
	if err := c.codec.Decode(name, cookie.Value, &value); err != nil {
		return "", fmt.Errorf("invalid cookie %s: %w", name, err)
	}

	return value, nil
}

// Clear expires cookie name
func (c *CookieCodec) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
