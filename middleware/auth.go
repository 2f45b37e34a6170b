package middleware

import (
	"context"
	"net/http"
	"strings"

	"bookwhisper/identity"
)

type contextKey string

const ParticipantContextKey contextKey = "participant"

// Auth verifies the bearer credential through the identity resolver and adds
// the participant ID to the request context.
func Auth(resolver identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)
			if credential == "" {
				http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			participantID, err := resolver.Verify(credential)
			if err != nil {
				http.Error(w, `{"error": "Invalid credential"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ParticipantContextKey, participantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetParticipantFromContext retrieves the authenticated participant ID from
// the request context, or "" when the request never passed Auth.
func GetParticipantFromContext(r *http.Request) string {
	id, _ := r.Context().Value(ParticipantContextKey).(string)
	return id
}

// Browsers cannot set headers on websocket handshakes, so the credential may
// arrive as a query parameter instead of an Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
