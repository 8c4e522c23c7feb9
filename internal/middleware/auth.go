// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for user ID.
	UserIDKey ContextKey = "user_id"
	// TenantIDKey is the context key for tenant ID.
	TenantIDKey ContextKey = "tenant_id"
	// ThreadIDKey is the context key for the thread a token is bound to.
	ThreadIDKey ContextKey = "thread_id"
	// ScopesKey is the context key for JWT scopes.
	ScopesKey ContextKey = "scopes"
)

// ScopeResolve allows answering escalated threads.
const ScopeResolve = "tickets:resolve"

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	ThreadID string   `json:"thread_id,omitempty"`
	Scopes   []string `json:"scope"`
}

// bearerToken returns the token from the Authorization header, or from the
// token query parameter for EventSource clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", false
		}
		return parts[1], true
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

// Auth creates JWT authentication middleware. The tenant ID it places in the
// context is the only tenant ID handlers trust.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				jsonError(w, http.StatusUnauthorized, "missing or malformed credentials")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if claims.TenantID == "" {
				jsonError(w, http.StatusUnauthorized, "token has no tenant")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, TenantIDKey, claims.TenantID)
			ctx = context.WithValue(ctx, ThreadIDKey, claims.ThreadID)
			ctx = context.WithValue(ctx, ScopesKey, claims.Scopes)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ThreadAccess rejects requests whose token is bound to a different thread
// than the {threadID} path parameter, and malformed thread IDs.
func ThreadAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "threadID")
		if err := ValidateThreadID(threadID); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		if bound := GetThreadID(r.Context()); bound != "" && bound != threadID {
			jsonError(w, http.StatusForbidden, "token is not valid for this thread")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetTenantID gets tenant ID from context.
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(TenantIDKey).(string)
	return v
}

// GetThreadID gets the thread a token is bound to, if any.
func GetThreadID(ctx context.Context) string {
	v, _ := ctx.Value(ThreadIDKey).(string)
	return v
}

// GetScopes gets scopes from context.
func GetScopes(ctx context.Context) []string {
	v, _ := ctx.Value(ScopesKey).([]string)
	return v
}

// HasScope checks if the context has a specific scope.
func HasScope(ctx context.Context, scope string) bool {
	for _, s := range GetScopes(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}

// RequireScope creates middleware that requires a specific scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				jsonError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
