// ABOUTME: Origin locality classification for the auth gate
// ABOUTME: Treats loopback IPv4/IPv6 addresses and localhost aliases as local

package auth

import (
	"net"
	"strings"
)

// IsLocal reports whether origin refers to the local machine. The origin may be
// a bare host, host:port, or a bracketed IPv6 literal with or without a port.
func IsLocal(origin string) bool {
	h := strings.TrimSpace(origin)
	if h == "" {
		return false
	}

	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")

	// Zone identifiers (fe80::1%eth0, ::1%lo0) are irrelevant to loopback checks.
	if i := strings.IndexByte(h, '%'); i >= 0 {
		h = h[:i]
	}

	lower := strings.ToLower(strings.TrimSuffix(h, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") ||
		lower == "ip6-localhost" || lower == "ip6-loopback" {
		return true
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
