package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scope.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "logging:\n  level: debug\n"))
	t.Setenv("SCOPE_ENV", "test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Environment = %q, want test", cfg.Environment)
	}
	if cfg.SoundCloud.APIRoot != "https://api.soundcloud.com" {
		t.Errorf("APIRoot = %q", cfg.SoundCloud.APIRoot)
	}
	if cfg.SoundCloud.ClientID != "eadbbc8380aa72be1412e2abe5f8e4ca" {
		t.Errorf("ClientID = %q", cfg.SoundCloud.ClientID)
	}
	if cfg.Scope.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.Scope.RequestTimeout)
	}
	if cfg.Scope.SearchLimit != 30 {
		t.Errorf("SearchLimit = %d, want 30", cfg.Scope.SearchLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want value from file", cfg.Logging.Level)
	}
	if cfg.Scope.IgnoreAccounts {
		t.Error("IgnoreAccounts should default to false")
	}
}

func TestLoadConfigHarnessOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "scope:\n  search_limit: 10\n"))
	t.Setenv(EnvAPIRoot, "http://127.0.0.1:9999")
	t.Setenv(EnvIgnoreAccounts, "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.SoundCloud.APIRoot != "http://127.0.0.1:9999" {
		t.Errorf("APIRoot = %q, want harness override", cfg.SoundCloud.APIRoot)
	}
	if !cfg.Scope.IgnoreAccounts {
		t.Error("an empty SOUNDCLOUD_SCOPE_IGNORE_ACCOUNTS should still disable accounts")
	}
	if cfg.Scope.SearchLimit != 10 {
		t.Errorf("SearchLimit = %d, want 10", cfg.Scope.SearchLimit)
	}
}

func TestLoadConfigPrefixedEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "{}\n"))
	t.Setenv("SCOPE_SOUNDCLOUD_CLIENT_ID", "from-env")
	t.Setenv("SCOPE_SERVER_PORT", "9090")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SoundCloud.ClientID != "from-env" {
		t.Errorf("ClientID = %q, want from-env", cfg.SoundCloud.ClientID)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"empty client id", "soundcloud:\n  client_id: \"\"\n"},
		{"auth without secret", "auth:\n  required: true\n"},
		{"bad locale", "scope:\n  locale: \"not a locale!\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", writeConfig(t, tt.body))
			if _, err := LoadConfig(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ValidateAndFixConfig
// ---------------------------------------------------------------------------

func validConfig() *Config {
	cfg := &Config{}
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.IdleTimeout = time.Minute
	cfg.Scope.RequestTimeout = 10 * time.Second
	cfg.WebSocket.PongWait = time.Minute
	cfg.WebSocket.PingPeriod = 54 * time.Second
	cfg.SoundCloud.APIRoot = "https://api.soundcloud.com"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

func TestValidateAndFixConfigClean(t *testing.T) {
	t.Parallel()

	if warnings := ValidateAndFixConfig(validConfig()); len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestValidateAndFixConfigRepairs(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	cfg.Server.WriteTimeout = 5 * time.Second
	cfg.SoundCloud.APIRoot = "http://localhost:8000/"
	cfg.Features.EnableYouTube = true
	cfg.Features.EnableActivityLog = true
	cfg.Logging.Level = "loud"

	warnings := ValidateAndFixConfig(cfg)
	if len(warnings) < 5 {
		t.Errorf("expected at least 5 warnings, got %d: %v", len(warnings), warnings)
	}
	if len(cfg.Auth.JWTSecret) != 32 {
		t.Errorf("generated secret length = %d, want 32", len(cfg.Auth.JWTSecret))
	}
	if cfg.Server.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want 15s", cfg.Server.WriteTimeout)
	}
	if strings.HasSuffix(cfg.SoundCloud.APIRoot, "/") {
		t.Errorf("APIRoot kept trailing slash: %q", cfg.SoundCloud.APIRoot)
	}
	if cfg.Features.EnableYouTube {
		t.Error("YouTube without a key should be disabled")
	}
	if cfg.Features.EnableActivityLog {
		t.Error("activity log without MongoDB should be disabled")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}
