package helpers

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the visitor address used for rate limiting. The first
// parseable X-Forwarded-For entry wins, then X-Real-IP, then RemoteAddr.
// Forwarding headers are only trustworthy behind a proxy that overwrites them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, p := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
				return ip.String()
			}
		}
	}

	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		if ip := net.ParseIP(xr); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
