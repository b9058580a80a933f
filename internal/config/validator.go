package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidateAndFixConfig validates the configuration, repairs what it can and
// returns a warning for every adjustment made.
func ValidateAndFixConfig(config *Config) []string {
	var warnings []string

	if config.Auth.JWTSecret == "" {
		warnings = append(warnings, "JWT secret is not set, generating a random one")
		secret, err := generateRandomSecret(32)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to generate JWT secret: %v", err))
		} else {
			config.Auth.JWTSecret = secret
		}
	} else if len(config.Auth.JWTSecret) < 16 {
		warnings = append(warnings, "JWT secret is too short, should be at least 16 characters")
	}

	minTimeout := 1 * time.Second
	maxTimeout := 5 * time.Minute

	config.Server.ReadTimeout, warnings = clampDuration("Server read timeout", config.Server.ReadTimeout, minTimeout, maxTimeout, warnings)
	config.Server.WriteTimeout, warnings = clampDuration("Server write timeout", config.Server.WriteTimeout, minTimeout, maxTimeout, warnings)
	if config.Server.IdleTimeout < minTimeout {
		warnings = append(warnings, fmt.Sprintf("Server idle timeout is too short (%v), setting to %v", config.Server.IdleTimeout, minTimeout))
		config.Server.IdleTimeout = minTimeout
	}

	// A query holds the REST request open while it waits on the client.
	if config.Server.WriteTimeout <= config.Scope.RequestTimeout {
		adjusted := config.Scope.RequestTimeout + 5*time.Second
		warnings = append(warnings, fmt.Sprintf("Server write timeout (%v) does not exceed the scope request timeout, setting to %v", config.Server.WriteTimeout, adjusted))
		config.Server.WriteTimeout = adjusted
	}

	if config.WebSocket.PingPeriod >= config.WebSocket.PongWait {
		adjusted := config.WebSocket.PongWait * 9 / 10
		warnings = append(warnings, fmt.Sprintf("WebSocket ping period must be shorter than pong wait, setting to %v", adjusted))
		config.WebSocket.PingPeriod = adjusted
	}

	config.SoundCloud.APIRoot = strings.TrimRight(config.SoundCloud.APIRoot, "/")

	if config.Features.EnableYouTube && config.YouTube.APIKey == "" {
		warnings = append(warnings, "YouTube is enabled but API key is not set, disabling it")
		config.Features.EnableYouTube = false
	}

	if config.Features.EnableActivityLog && !config.Database.MongoDB.Enabled {
		warnings = append(warnings, "Activity log requires MongoDB, disabling it")
		config.Features.EnableActivityLog = false
	}

	if config.Database.MongoDB.Enabled &&
		!strings.HasPrefix(config.Database.MongoDB.URI, "mongodb://") &&
		!strings.HasPrefix(config.Database.MongoDB.URI, "mongodb+srv://") {
		warnings = append(warnings, "MongoDB URI is invalid, must start with mongodb:// or mongodb+srv://")
	}

	if config.Database.Redis.Enabled {
		for _, addr := range config.Database.Redis.Addresses {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid Redis address: %s", addr))
				continue
			}
			if host == "" || port == "" {
				warnings = append(warnings, fmt.Sprintf("Redis address is incomplete: %s", addr))
			}
		}
	}

	if config.RateLimit.Actions > 0 && config.RateLimit.Window <= 0 {
		warnings = append(warnings, "Rate limit window is not set, using 1m")
		config.RateLimit.Window = time.Minute
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(config.Logging.Level)] {
		warnings = append(warnings, fmt.Sprintf("Invalid logging level: %s, setting to 'info'", config.Logging.Level))
		config.Logging.Level = "info"
	}

	format := strings.ToLower(config.Logging.Format)
	if format != "json" && format != "console" {
		warnings = append(warnings, fmt.Sprintf("Invalid logging format: %s, setting to 'json'", config.Logging.Format))
		config.Logging.Format = "json"
	}

	return warnings
}

func clampDuration(name string, d, lo, hi time.Duration, warnings []string) (time.Duration, []string) {
	switch {
	case d < lo:
		return lo, append(warnings, fmt.Sprintf("%s is too short (%v), setting to %v", name, d, lo))
	case d > hi:
		return hi, append(warnings, fmt.Sprintf("%s is too long (%v), setting to %v", name, d, hi))
	default:
		return d, warnings
	}
}

// generateRandomSecret generates a random secret string of the specified length
func generateRandomSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}
