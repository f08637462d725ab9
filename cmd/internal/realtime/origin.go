package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// enforceOrigin applies the allowlist before the upgrade so rejected browsers
// get a plain 403 instead of a failed handshake.
func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if g.cfg.anyOrigin() {
		return nil
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into host patterns for
// websocket.AcceptOptions.OriginPatterns, so Accept agrees with enforceOrigin.
func deriveOriginPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" || slices.Contains(out, h) {
			continue
		}
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
