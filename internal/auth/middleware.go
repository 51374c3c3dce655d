package auth

import (
	"context"
	"net/http"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
	"github.com/aliuyar1234/sanctus/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDContextKey is the context key for storing user ID
	UserIDContextKey contextKey = "user_id"
)

// RoleResolver looks up the current role of a user. Roles are read per
// request so a demotion takes effect without waiting for the session to expire.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (domain.Role, error)
}

// AuthMiddleware validates the session cookie and injects the user ID into context
// If the session is invalid, it clears the cookie and continues without authentication
func AuthMiddleware(secret string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w, secure)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// RequireAuth is middleware that requires authentication
// Returns 401 if the user is not authenticated
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows the request only when the authenticated user holds role.
// Anonymous requests get 401, other roles get 403.
func RequireRole(resolver RoleResolver, role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == uuid.Nil {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			got, err := resolver.RoleOf(r.Context(), userID)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to resolve role")
				apperrors.WriteInternalError(w, r, "Failed to resolve role")
				return
			}
			if got != role {
				log.Warn().
					Str("user_id", userID.String()).
					Str("role", string(got)).
					Str("required", string(role)).
					Str("path", r.URL.Path).
					Msg("Role check failed")
				apperrors.WriteForbidden(w, r, "Insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a context carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}
