package utils

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, optionally prefixed ("query_3f1c...").
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ParseUint parses a decimal id, returning defaultValue on error.
func ParseUint(s string, defaultValue uint) uint {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return defaultValue
	}
	return uint(v)
}

// ParseInt parses a string into an int with a default value on error
func ParseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetRequestIP returns the client address, preferring X-Forwarded-For.
func GetRequestIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip, _, _ = strings.Cut(ip, ",")
		return strings.TrimSpace(ip)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
