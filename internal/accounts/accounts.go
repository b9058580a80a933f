// Package accounts reads the SoundCloud account status published by the host account daemon.
// Token acquisition itself happens outside the scope.
package accounts

import (
	"context"
	"errors"
)

// ServiceName is the account service the scope looks for.
const ServiceName = "soundcloud"

// ErrNoAccount is returned by sources that have nothing configured.
var ErrNoAccount = errors.New("accounts: no account configured")

// Credentials is the status of a single online account.
type Credentials struct {
	Service     string `json:"service"`
	AccessToken string `json:"access_token"`
	ClientID    string `json:"client_id,omitempty"`
	Enabled     bool   `json:"enabled"`

	// Error is set by the account daemon when the account needs attention,
	// e.g. an expired refresh token.
	Error string `json:"error,omitempty"`
}

// Authenticated reports whether requests may be signed with the access token.
// A service in an error state counts as logged out.
func (c Credentials) Authenticated() bool {
	return c.Enabled && c.Error == "" && c.AccessToken != ""
}

// Source provides the current account status.
type Source interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static is a Source with fixed credentials, typically taken from configuration.
type Static struct {
	creds Credentials
}

// NewStatic creates a static source. An empty token yields an anonymous source.
func NewStatic(accessToken, clientID string) *Static {
	return &Static{creds: Credentials{
		Service:     ServiceName,
		AccessToken: accessToken,
		ClientID:    clientID,
		Enabled:     accessToken != "",
	}}
}

// Credentials implements Source.
func (s *Static) Credentials(context.Context) (Credentials, error) {
	if s.creds.AccessToken == "" {
		return Credentials{}, ErrNoAccount
	}
	return s.creds, nil
}

// Chain asks each source in turn and returns the first authenticated account.
type Chain []Source

// Credentials implements Source. When no source is authenticated the first
// non-error answer is returned. The errors of all sources are joined only when
// every source failed.
func (c Chain) Credentials(ctx context.Context) (Credentials, error) {
	var (
		fallback    Credentials
		hasFallback bool
		errs        []error
	)

	for _, source := range c {
		creds, err := source.Credentials(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if creds.Authenticated() {
			return creds, nil
		}
		if !hasFallback {
			fallback, hasFallback = creds, true
		}
	}

	if hasFallback || len(errs) == 0 {
		return fallback, nil
	}
	return Credentials{}, errors.Join(errs...)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credentials, error)

// Credentials implements Source.
func (f SourceFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}
