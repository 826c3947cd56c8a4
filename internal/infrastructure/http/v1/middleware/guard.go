package middleware

import (
	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/domain/authz"
)

// RequireGuard evaluates a compiled route predicate against the request
// context. Predicates are CEL expressions over the identity tuple, for
// example `"invoice:export" in permissions && role != "staff"`. A denial
// is audited as a security event so repeated probing shows up.
func RequireGuard(guard *authz.Guard, auditor ViolationRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		allowed, err := guard.Allow(ctx)
		if err != nil {
			_ = c.Error(apperror.NewInternal(err))
			c.Abort()
			return
		}
		if !allowed {
			if auditor != nil {
				_ = auditor.Violation(ctx, "route_guard_denied", map[string]any{
					"path":  c.FullPath(),
					"guard": guard.Expr(),
				})
			}
			_ = c.Error(apperror.NewForbidden("insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePermission is the common case of RequireGuard: a single
// permission check against the claims-borne permission list.
func RequirePermission(engine *authz.Engine, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if !engine.IsAuthenticated(ctx) {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !engine.HasPermission(ctx, permission) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_permission", permission),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireMinRole gates a route on the role hierarchy.
func RequireMinRole(engine *authz.Engine, min authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if !engine.IsAuthenticated(ctx) {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !engine.HasMinRole(ctx, min) {
			_ = c.Error(
				apperror.NewForbidden("insufficient role").
					WithDetail("required_role", string(min)),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}
