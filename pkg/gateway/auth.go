package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenAuth checks the bearer token presented on the websocket upgrade
// request. An empty token disables the check.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates a token checker
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{
		token: token,
	}
}

// Enabled reports whether a token is required
func (a *TokenAuth) Enabled() bool {
	return a.token != ""
}

// Verify compares a presented token with the configured one
func (a *TokenAuth) Verify(presented string) bool {
	if !a.Enabled() {
		return true
	}

	// Use constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(presented)) == 1
}

// Authorize checks the Authorization header, falling back to the "token"
// query parameter for browser clients that cannot set headers.
func (a *TokenAuth) Authorize(r *http.Request) bool {
	if !a.Enabled() {
		return true
	}

	if header := r.Header.Get("Authorization"); header != "" {
		presented, ok := strings.CutPrefix(header, "Bearer ")
		return ok && a.Verify(presented)
	}

	return a.Verify(r.URL.Query().Get("token"))
}
