package auth

import (
	"context"
	"net/http"
	"rendezvous/contract"
	"rendezvous/domain"
	"strconv"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// UserIDHeader carries the caller's id on HTTP requests when no token is used.
const UserIDHeader = "X-User-ID"

// Middleware authenticates HTTP requests with the same resolver as WebSocket
// sessions: the bearer token and the X-User-ID header form an authenticate command.
// The resolved user id is put in the request context.
func Middleware(resolver contract.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cmd := domain.Authenticate{
				Token: strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
			}
			if raw := r.Header.Get(UserIDHeader); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					http.Error(w, "invalid user id", http.StatusUnauthorized)
					return
				}
				cmd.UserID = domain.UserID(id)
			}
			userID, err := resolver.Resolve(cmd)
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserIDKey, userID)))
		})
	}
}

// UserID returns the user resolved by Middleware.
func UserID(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(UserIDKey).(domain.UserID)
	return id, ok
}
