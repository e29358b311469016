package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/example/pharmacy-storefront/internal/auth"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// Sessions reports the shopper's current login.
type Sessions interface {
	Session() auth.Session
}

// RequireSession rejects requests with 401 while no shopper is logged in and
// adds the session to the request context otherwise.
func RequireSession(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessions.Session()
			if !session.IsAuthenticated() {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext retrieves the session stored by RequireSession.
func GetSessionFromContext(ctx context.Context) (auth.Session, bool) {
	session, ok := ctx.Value(UserContextKey).(auth.Session)
	return session, ok
}

// GetUserID is a helper to get just the user ID from context
func GetUserID(ctx context.Context) string {
	session, ok := GetSessionFromContext(ctx)
	if !ok {
		return ""
	}
	return session.UserID
}
