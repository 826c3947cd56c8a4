package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/tenant"
	"ledgercore/pkg/logger"
)

const (
	// TenantHeader is the HTTP header for explicit tenant identification.
	TenantHeader = "X-Tenant-ID"

	tenantKey = "resolved_tenant"
)

// ViolationRecorder records security events to the audit log.
type ViolationRecorder interface {
	Violation(ctx context.Context, kind string, details map[string]any) error
}

// Tenant resolves the active tenant from the request sources (header,
// token claim, subdomain, path) and stores it for the context middleware.
// A disagreement between the token-bound tenant and any other source is a
// security event: audited and refused.
func Tenant(resolver *tenant.Resolver, auditor ViolationRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		hints := tenant.Hints{
			Header: c.GetHeader(TenantHeader),
			Host:   c.Request.Host,
			Path:   c.Request.URL.Path,
		}
		if claims := ClaimsFrom(c); claims != nil {
			hints.Claim = claims.TenantID
		}

		t, err := resolver.Resolve(ctx, hints)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrSourceMismatch):
				if auditor != nil {
					_ = auditor.Violation(ctx, "cross_tenant_request", map[string]any{
						"header": hints.Header,
						"claim":  hints.Claim,
						"host":   hints.Host,
					})
				}
				_ = c.Error(apperror.NewCrossTenant())
			case errors.Is(err, tenant.ErrNoCandidate):
				_ = c.Error(apperror.NewTenantRequired())
			case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrTenantNotActive):
				_ = c.Error(apperror.NewInvalidTenant(hints.Header))
			default:
				_ = c.Error(apperror.NewInternal(err))
			}
			c.Abort()
			return
		}

		// The token's tenant must be the resolved tenant. The resolver
		// treats the claim as authoritative, so a divergence here means a
		// claim-less source produced a different tenant than the token.
		if claims := ClaimsFrom(c); claims != nil && claims.TenantID != t.ID {
			if auditor != nil {
				_ = auditor.Violation(ctx, "cross_tenant_request", map[string]any{
					"claim":    claims.TenantID,
					"resolved": t.ID,
				})
			}
			logger.Warn(ctx, "token tenant does not match resolved tenant",
				"claim", claims.TenantID, "resolved", t.ID)
			_ = c.Error(apperror.NewCrossTenant())
			c.Abort()
			return
		}

		c.Set(tenantKey, t)
		c.Header(TenantHeader, t.ID)
		c.Header("X-Tenant-Slug", t.Slug)
		c.Next()
	}
}

// OptionalTenant resolves the tenant when the request names one but
// tolerates its absence. Public endpoints use it: login still needs a
// tenant to scope the user lookup, and reports tenant_required from the
// service when no source named one, but probes and token refresh do not.
// A mismatch or an inactive tenant is refused here exactly as in Tenant.
func OptionalTenant(resolver *tenant.Resolver, auditor ViolationRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		hints := tenant.Hints{
			Header: c.GetHeader(TenantHeader),
			Host:   c.Request.Host,
			Path:   c.Request.URL.Path,
		}

		t, err := resolver.Resolve(ctx, hints)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrNoCandidate):
				c.Next()
				return
			case errors.Is(err, tenant.ErrSourceMismatch):
				if auditor != nil {
					_ = auditor.Violation(ctx, "cross_tenant_request", map[string]any{
						"header": hints.Header,
						"host":   hints.Host,
					})
				}
				_ = c.Error(apperror.NewCrossTenant())
			case errors.Is(err, tenant.ErrTenantNotFound), errors.Is(err, tenant.ErrTenantNotActive):
				_ = c.Error(apperror.NewInvalidTenant(hints.Header))
			default:
				_ = c.Error(apperror.NewInternal(err))
			}
			c.Abort()
			return
		}

		c.Set(tenantKey, t)
		c.Header(TenantHeader, t.ID)
		c.Header("X-Tenant-Slug", t.Slug)
		c.Next()
	}
}

// TenantFrom returns the resolved tenant, or nil before resolution.
func TenantFrom(c *gin.Context) *tenant.Tenant {
	if v, exists := c.Get(tenantKey); exists {
		if t, ok := v.(*tenant.Tenant); ok {
			return t
		}
	}
	return nil
}
