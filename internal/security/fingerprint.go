package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// ShortFingerprintLen is how many hex characters of a fingerprint may leave the server (logs, cookies).
const ShortFingerprintLen = 16

const fingerprintSeparator = "|"

// RequestMeta is the connection metadata a fingerprint is derived from.
type RequestMeta struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	// ForwardedFor is the raw X-Forwarded-For header; the first entry is the client.
	ForwardedFor string
	// RemoteAddr is the socket address (host:port or bare host).
	RemoteAddr string
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the socket address host.
func (m RequestMeta) ClientIP() string {
	if m.ForwardedFor != "" {
		first := m.ForwardedFor
		if i := strings.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	addr := strings.TrimSpace(m.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// FingerprintGenerator derives a stable device digest from request metadata.
// Field order is fixed here, never by the caller.
type FingerprintGenerator struct {
	includeIP bool
}

// NewFingerprintGenerator returns a generator. includeIP binds sessions to the client IP as well.
func NewFingerprintGenerator(includeIP bool) *FingerprintGenerator {
	return &FingerprintGenerator{includeIP: includeIP}
}

// Fingerprint returns the hex SHA-256 of user-agent, accept-language, accept-encoding and (optionally) client IP.
func (g *FingerprintGenerator) Fingerprint(meta RequestMeta) string {
	parts := []string{
		strings.TrimSpace(meta.UserAgent),
		strings.TrimSpace(meta.AcceptLanguage),
		strings.TrimSpace(meta.AcceptEncoding),
	}
	if g.includeIP {
		parts = append(parts, meta.ClientIP())
	}
	h := sha256.Sum256([]byte(strings.Join(parts, fingerprintSeparator)))
	return hex.EncodeToString(h[:])
}

// ShortFingerprint returns the exposable prefix of fp.
func ShortFingerprint(fp string) string {
	if len(fp) <= ShortFingerprintLen {
		return fp
	}
	return fp[:ShortFingerprintLen]
}

// DescribeDevice returns a coarse "browser on os" label for a user agent, or "unknown device".
func DescribeDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return "unknown device"
	}
	browser := "unknown browser"
	switch {
	case strings.Contains(ua, "edg/"):
		browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome/"):
		browser = "Chrome"
	case strings.Contains(ua, "safari/"):
		browser = "Safari"
	case strings.Contains(ua, "curl/"):
		browser = "curl"
	}
	os := "unknown OS"
	switch {
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac os"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	}
	return browser + " on " + os
}
