package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKeyType string

const sessionIDKey contextKeyType = "session_id"

// Session middleware extracts the shopping session identifier from the
// X-Session-ID header and injects it into the request context. Requests
// without a session identifier are rejected: every cart and checkout
// operation is scoped to exactly one session.
func Session() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get("X-Session-ID")
			if sessionID == "" {
				writeSessionError(w, "missing X-Session-ID header")
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext extracts the session ID from the context.
// Returns an empty string if not present.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func writeSessionError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "MISSING_SESSION",
			"message": message,
		},
	})
}
