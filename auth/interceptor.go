package auth

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Browsers' EventSource cannot set headers, so the token may travel in the query string.
var credentialParams = []string{"access_token", "token"}

// CredentialFromRequest extracts the bearer token from the Authorization header
// or, failing that, from the query string.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	for _, name := range credentialParams {
		if token := r.URL.Query().Get(name); token != "" {
			return token
		}
	}
	return ""
}

// Middleware rejects requests without a valid bearer token and
// injects the caller identity into the request context.
func Middleware(authenticator contract.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticator.Authenticate(r.Context(), CredentialFromRequest(r))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	return userID, ok
}
