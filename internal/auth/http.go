// ABOUTME: HTTP helpers for the auth gate on REST and WebSocket endpoints
// ABOUTME: Extracts bearer/query credentials and rejects denied requests with 401

package auth

import (
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// CredentialFromRequest returns the credential presented for the given transport:
// the bearer token for request-style calls, the "token" query parameter for streams.
func CredentialFromRequest(r *http.Request, transport Transport) string {
	if transport == TransportStream {
		return r.URL.Query().Get("token")
	}
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

// AuthorizeRequest runs the gate against r and returns the decision together
// with the identity that handlers can read back from the context.
func (g *Gate) AuthorizeRequest(r *http.Request, transport Transport) (Decision, *Identity) {
	credential := CredentialFromRequest(r, transport)
	decision := g.Authorize(r.RemoteAddr, credential, transport)
	id := &Identity{
		Origin:       r.RemoteAddr,
		Local:        g.trust(r.RemoteAddr),
		TokenMatched: tokenMatches(credential, g.Policy().Token),
		Transport:    transport,
	}
	return decision, id
}

// Middleware creates an HTTP middleware that enforces the gate on request-style endpoints.
func Middleware(g *Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, id := g.AuthorizeRequest(r, TransportRequest)
			if decision != Allow {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
