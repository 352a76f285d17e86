package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/account-service/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey string

const userIDKey contextKey = "userID"

// RoleChecker answers whether a user holds a role. The account service
// implements it against the credential store.
type RoleChecker interface {
	HasRole(ctx context.Context, userID string, role model.Role) (bool, error)
}

// RequireAuth enforces a valid access token on protected routes.
//
// It reads "Authorization: Bearer <token>", validates it with the access
// TokenService and stores the user ID in the request context. A missing or
// invalid token ends the chain with 401.
func RequireAuth(access *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, access)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authentication.")
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the authenticated caller
// holds role. It must run after RequireAuth.
func RequireRole(checker RoleChecker, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid Authentication.")
				return
			}

			allowed, err := checker.HasRole(r.Context(), userID, role)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			if !allowed {
				writeJSONError(w, http.StatusForbidden, "forbidden", "Admin resources access denied.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
// Returns ("", false) when no valid token was presented.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

var errNoBearer = errors.New("auth: missing bearer token")

// extractUserID reads the bearer token and validates it. A bare token without
// the "Bearer " prefix is accepted too.
func extractUserID(r *http.Request, access *TokenService) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoBearer
	}

	token := header
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		token = strings.TrimSpace(header[7:])
	}
	if token == "" {
		return "", errNoBearer
	}

	return access.Validate(token)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
