package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/titlepulse/titlepulse-api/internal/pkg/response"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Identity extracts the authenticated user from the X-User-ID header set by
// the upstream auth proxy. Session verification itself happens before requests
// reach this service.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			response.Unauthorized(w, "missing user identity")
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			response.Unauthorized(w, "invalid user identity")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID returns the authenticated user ID from context, or uuid.Nil
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
