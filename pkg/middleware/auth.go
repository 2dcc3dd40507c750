package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/contextkeys"
	"github.com/platinummonkey/authsvc/pkg/httputil"
)

// UserResolver turns a bearer access token into the current user
type UserResolver interface {
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// RequireBearer rejects requests without a bearer token and stores the token in the context
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			httputil.WriteUnauthorized(w, "missing or invalid authorization header")
			return
		}
		ctx := contextkeys.WithToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResolveUser loads the user behind the bearer token. It must run after RequireBearer.
func ResolveUser(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := contextkeys.GetToken(r.Context())
			if token == "" {
				httputil.WriteUnauthorized(w, "missing or invalid authorization header")
				return
			}

			user, err := resolver.CurrentUser(r.Context(), token)
			if err != nil {
				httputil.WriteAuthError(w, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			ctx = contextkeys.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetToken returns the bearer token stored by RequireBearer
func GetToken(r *http.Request) string {
	return contextkeys.GetToken(r.Context())
}

// WithUser adds the resolved user to the context
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return contextkeys.WithUser(ctx, user)
}

// GetUser retrieves the resolved user from the request context
func GetUser(r *http.Request) *auth.User {
	user, ok := contextkeys.Value[*auth.User](r.Context(), contextkeys.UserKey)
	if !ok {
		return nil
	}
	return user
}
