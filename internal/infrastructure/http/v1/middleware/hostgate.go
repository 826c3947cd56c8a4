package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/pkg/logger"
)

// HostGate validates the Host header against the allow-list before any
// tenant logic runs. Entries are exact ("api.example.com", with an optional
// port pin "api.example.com:8443") or wildcard-subdomain (".example.com").
// Health paths bypass the check so probes work without host configuration.
func HostGate(allowedHosts []string) gin.HandlerFunc {
	exact := make(map[string]bool)
	pinned := make(map[string]bool) // host:port entries
	var wildcards []string

	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case strings.HasPrefix(h, "."):
			wildcards = append(wildcards, stripHostPort(h))
		case strings.Contains(h, ":"):
			pinned[h] = true
		default:
			exact[h] = true
		}
	}

	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health") {
			c.Next()
			return
		}

		rawHost := strings.ToLower(c.Request.Host)
		host := stripHostPort(rawHost)

		if pinned[rawHost] || exact[host] || matchesWildcard(host, wildcards) {
			c.Next()
			return
		}

		logger.Warn(c.Request.Context(), "rejected host", "host", rawHost)
		_ = c.Error(apperror.NewInvalidHost())
		c.Abort()
	}
}

func matchesWildcard(host string, wildcards []string) bool {
	for _, suffix := range wildcards {
		if strings.HasSuffix(host, suffix) && host != strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}

func stripHostPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
