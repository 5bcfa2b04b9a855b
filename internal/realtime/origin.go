package realtime

import (
	"net"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a socket.
type originPolicy map[string]struct{}

func newOriginPolicy(origins []string) originPolicy {
	p := make(originPolicy, len(origins))
	for _, o := range origins {
		if host := hostname(o); host != "" {
			p[host] = struct{}{}
		}
	}
	return p
}

// allows reports whether origin may connect to requestHost. Non-browser
// clients send no Origin and are always allowed.
func (p originPolicy) allows(origin, requestHost string) bool {
	if strings.TrimSpace(origin) == "" {
		return true
	}
	host := hostname(origin)
	if host == "" {
		return false
	}
	if host == hostname(requestHost) || loopback(host) {
		return true
	}
	_, ok := p[host]
	return ok
}

// hostname lowercases the host of a URL or host[:port] string.
func hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(raw)
}

func loopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
