// Package soundcloud is an asynchronous client for the SoundCloud REST API.
package soundcloud

import (
	"context"
	"sync"

	"norelock.dev/soundscope/internal/accounts"
)

// Defaults used when nothing else is configured.
const (
	DefaultAPIRoot   = "https://api.soundcloud.com"
	DefaultClientID  = "eadbbc8380aa72be1412e2abe5f8e4ca"
	DefaultUserAgent = "soundscope 0.1"
)

// Settings is an immutable view of the client configuration for one request.
type Settings struct {
	APIRoot       string
	ClientID      string
	UserAgent     string
	AccessToken   string
	Authenticated bool
	Directory     string
}

// DefaultSettings returns anonymous settings against the public API.
func DefaultSettings() Settings {
	return Settings{
		APIRoot:   DefaultAPIRoot,
		ClientID:  DefaultClientID,
		UserAgent: DefaultUserAgent,
	}
}

// Config is shared by every client created for a scope. Credentials are
// re-derived from the account source before each request.
type Config struct {
	mu       sync.RWMutex
	settings Settings
	baseID   string
	source   accounts.Source
}

// NewConfig creates a config. source may be nil, in which case the settings
// are used as given.
func NewConfig(settings Settings, source accounts.Source) *Config {
	if settings.APIRoot == "" {
		settings.APIRoot = DefaultAPIRoot
	}
	if settings.ClientID == "" {
		settings.ClientID = DefaultClientID
	}
	if settings.UserAgent == "" {
		settings.UserAgent = DefaultUserAgent
	}
	return &Config{
		settings: settings,
		baseID:   settings.ClientID,
		source:   source,
	}
}

// Refresh re-reads the account status. Without an authenticated account the
// token is cleared and requests fall back to the client id. The returned error
// is informational: the config is always left in a usable state.
func (c *Config) Refresh(ctx context.Context) error {
	if c.source == nil {
		return nil
	}

	creds, err := c.source.Credentials(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || !creds.Authenticated() {
		c.settings.AccessToken = ""
		c.settings.Authenticated = false
		c.settings.ClientID = c.baseID
		return err
	}

	c.settings.AccessToken = creds.AccessToken
	c.settings.Authenticated = true
	if creds.ClientID != "" {
		c.settings.ClientID = creds.ClientID
	} else {
		c.settings.ClientID = c.baseID
	}
	return nil
}

// Snapshot returns a copy of the current settings.
func (c *Config) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Authenticated reports whether the last refresh found a usable account.
func (c *Config) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.Authenticated
}
