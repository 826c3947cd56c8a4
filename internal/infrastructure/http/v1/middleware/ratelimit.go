package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/infrastructure/cache"
)

// rate limit exempt path prefixes: probes and static assets never count
// against a client's budget.
var exemptPrefixes = []string{"/health", "/static", "/media"}

// RateLimit counts requests per client IP within a fixed window. The limit
// is the general ladder; login and register carry their own stricter limit
// through AuthRateLimit on top of this one.
func RateLimit(limiter cache.Limiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range exemptPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		decision := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP(), limit)
		if !decision.Allowed {
			refuse(c, decision)
			return
		}
		c.Next()
	}
}

// AuthRateLimit is the stricter ladder for credential endpoints, keyed
// separately so bursts of authenticated traffic cannot crowd out the
// budget for login attempts, nor the reverse.
func AuthRateLimit(limiter cache.Limiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := limiter.Allow(c.Request.Context(), "auth:"+c.ClientIP(), limit)
		if !decision.Allowed {
			refuse(c, decision)
			return
		}
		c.Next()
	}
}

func refuse(c *gin.Context, decision cache.Decision) {
	retryAfter := int(time.Until(decision.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	_ = c.Error(apperror.NewRateLimited(retryAfter))
	c.Abort()
}
