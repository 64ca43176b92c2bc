package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// UserIDHeader carries the caller's user id, set by the upstream gateway
// after authentication.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

// WithUserID stores the requesting user in ctx
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the requesting user stored by RequireUser
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// RequireUser rejects requests without a valid user id header
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "invalid "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
