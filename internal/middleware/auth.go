package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"train-console/internal/domain"
	"train-console/internal/observability"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"
)

// SessionSource is the part of the session store the guards read.
// Live returns nil once the session has expired and ends it.
type SessionSource interface {
	Live(ctx context.Context) *domain.Session
}

// RequireSession rejects requests while the console holds no live session
func RequireSession(store SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := store.Live(r.Context())
			if session == nil {
				writeAuthError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = WithUserID(ctx, session.UserID)
			ctx = observability.WithUserID(ctx, session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireSession
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSession(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if !session.IsAdmin || session.AdminAPIKey == "" {
				writeAuthError(w, http.StatusForbidden, "Admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	session, ok := ctx.Value(SessionKey).(*domain.Session)
	return session, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
