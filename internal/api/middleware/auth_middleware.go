package middleware

import (
	"errors"
	"net/http"

	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/utils"
)

// AuthMiddleware handles host-token authentication for the API.
type AuthMiddleware struct {
	authProvider auth.Provider
	required     bool
	logger       *utils.Logger
}

// NewAuthMiddleware creates a new auth middleware. authProvider may be nil,
// in which case every request is anonymous and RequireAuth rejects all of them.
func NewAuthMiddleware(authProvider auth.Provider, required bool, logger *utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authProvider: authProvider,
		required:     required,
		logger:       logger.Named("auth_middleware"),
	}
}

// Authenticate stores the claims of a valid token in the request context.
// Requests without a token pass through anonymously unless authentication is
// required; a token that is present but invalid is always rejected.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := utils.ExtractBearerToken(r)
		if err != nil || m.authProvider == nil {
			if m.required {
				utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := m.validate(w, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// RequireAuth is a middleware that requires authentication.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			next.ServeHTTP(w, r)
			return
		}

		token, err := utils.ExtractBearerToken(r)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if m.authProvider == nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Authentication is not configured")
			return
		}

		claims, ok := m.validate(w, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// RequireRole is a middleware that requires a specific role. It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			if !claims.HasRole(role) {
				m.logger.Debug("Missing role", "subject", claims.Subject, "role", role)
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) validate(w http.ResponseWriter, token string) (*auth.Claims, bool) {
	claims, err := m.authProvider.ValidateToken(token)
	if err == nil {
		return claims, true
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		utils.RespondWithError(w, http.StatusUnauthorized, "Token has expired")
	case errors.Is(err, auth.ErrInvalidToken):
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
	default:
		m.logger.Error("Failed to validate token", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to validate token")
	}
	return nil, false
}
