// ABOUTME: Bearer token extraction helpers shared by channel adapters
// ABOUTME: Channels pass tokens through; only the security manager interprets them

package auth

import (
	"net/http"
	"strings"
)

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest pulls a credential from an HTTP request: the
// Authorization header first, falling back to the X-Nexus-Token marker
// header used by signed tool invocations. Empty when absent.
func TokenFromRequest(r *http.Request) string {
	if token, errMsg := ExtractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		return token
	}
	return r.Header.Get("X-Nexus-Token")
}
