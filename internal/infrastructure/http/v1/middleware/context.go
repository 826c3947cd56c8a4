package middleware

import (
	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
)

// Context assembles the write-once request context from the verified
// claims and the resolved tenant. Must run after Auth and Tenant; every
// downstream read of the acting (tenant, user, role) tuple goes through
// reqctx from here on.
func Context() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		t := TenantFrom(c)
		if claims == nil || t == nil {
			_ = c.Error(apperror.NewInternal(nil).
				WithDetail("reason", "context middleware ran before auth and tenant"))
			c.Abort()
			return
		}

		rc := &reqctx.Context{
			TenantID:    t.ID,
			TenantSlug:  t.Slug,
			TenantPlan:  string(t.Plan),
			UserID:      claims.UserID,
			Email:       claims.Email,
			Role:        claims.Role,
			Group:       claims.Group,
			Permissions: claims.Permissions,
			RequestID:   reqctx.RequestID(c.Request.Context()),
			ClientIP:    c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
		}

		c.Request = c.Request.WithContext(reqctx.With(c.Request.Context(), rc))
		c.Next()
	}
}

// PublicContext assembles a partial request context for unauthenticated
// endpoints: tenant (when resolved) and request attribution, no identity.
// The auth service reads the tenant scope from here during login and
// registration.
func PublicContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := &reqctx.Context{
			RequestID: reqctx.RequestID(c.Request.Context()),
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if t := TenantFrom(c); t != nil {
			rc.TenantID = t.ID
			rc.TenantSlug = t.Slug
			rc.TenantPlan = string(t.Plan)
		}

		c.Request = c.Request.WithContext(reqctx.With(c.Request.Context(), rc))
		c.Next()
	}
}
