package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultContentSecurityPolicy forbids everything; the API serves no documents.
const DefaultContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

const strictTransportSecurity = "max-age=31536000; includeSubDomains"

type headerPair struct{ name, value string }

type securityConfig struct {
	csp  string
	hsts bool
}

// SecurityOption tweaks the headers written by SecurityHeaders.
type SecurityOption func(*securityConfig)

// WithContentSecurityPolicy replaces DefaultContentSecurityPolicy. An empty
// policy omits the header.
func WithContentSecurityPolicy(policy string) SecurityOption {
	return func(cfg *securityConfig) { cfg.csp = strings.TrimSpace(policy) }
}

// WithoutHSTS stops Strict-Transport-Security from being sent, for plain
// HTTP development setups behind a TLS-terminating proxy.
func WithoutHSTS() SecurityOption {
	return func(cfg *securityConfig) { cfg.hsts = false }
}

// SecurityHeaders sets the hardening headers on every response.
// Strict-Transport-Security is only sent when the request arrived over TLS,
// directly or as reported by X-Forwarded-Proto.
func SecurityHeaders(opts ...SecurityOption) gin.HandlerFunc {
	cfg := securityConfig{csp: DefaultContentSecurityPolicy, hsts: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	fixed := []headerPair{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-XSS-Protection", "1; mode=block"},
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	}
	if cfg.csp != "" {
		fixed = append(fixed, headerPair{"Content-Security-Policy", cfg.csp})
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range fixed {
			h.Set(p.name, p.value)
		}
		if cfg.hsts && overTLS(c) {
			h.Set("Strict-Transport-Security", strictTransportSecurity)
		}
		c.Next()
	}
}

func overTLS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	if i := strings.IndexByte(proto, ','); i >= 0 {
		proto = proto[:i]
	}
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
