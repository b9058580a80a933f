// Package auth validates the tokens host shells present to the scope daemon.
package auth

import (
	"context"
	"slices"
)

// Roles a host token may carry.
const (
	// RoleShell may run searches, previews and activations.
	RoleShell = "shell"
	// RoleAdmin may additionally read the activity log and clear caches.
	RoleAdmin = "admin"
)

// Provider defines the token operations used by the HTTP and RPC surfaces.
type Provider interface {
	// GenerateToken creates a token for a host-shell session.
	GenerateToken(subject, shell string, roles []string) (string, error)

	// ValidateToken validates a token and returns its claims.
	ValidateToken(token string) (*Claims, error)

	// RefreshToken issues a new token with the claims of a valid one.
	RefreshToken(token string) (string, error)
}

// BaseClaims are the application claims of a host token.
type BaseClaims struct {
	// Subject identifies the host-shell session.
	Subject string `json:"sub"`

	// Shell names the host shell, e.g. "unity8".
	Shell string `json:"shell,omitempty"`

	// Roles contains the granted roles.
	Roles []string `json:"roles"`
}

// Claims are the validated claims of a token.
type Claims struct {
	BaseClaims

	// StandardClaims contains the registered JWT claims.
	StandardClaims any `json:"standardClaims"`
}

// HasRole reports whether the claims grant role. Admins hold every role.
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Roles, role) || slices.Contains(c.Roles, RoleAdmin)
}

type claimsKey struct{}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// SubjectFromContext returns the subject of the claims in ctx, or "".
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
