package authz

import (
	"context"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
)

// Engine evaluates access predicates against the request context. It is
// stateless; every answer derives from the reqctx snapshot assembled by the
// middleware chain, so a predicate can be checked anywhere without extra
// queries.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// IsAuthenticated reports whether the request carries a verified identity.
func (e *Engine) IsAuthenticated(ctx context.Context) bool {
	rc := reqctx.From(ctx)
	return rc != nil && rc.UserID != ""
}

// IsTenantMember reports whether the caller belongs to tenantID.
// Multi-tenant operators count as members of every tenant.
func (e *Engine) IsTenantMember(ctx context.Context, tenantID string) bool {
	rc := reqctx.From(ctx)
	if rc == nil || rc.UserID == "" {
		return false
	}
	if Group(rc.Group) == GroupMultiTenant {
		return true
	}
	return rc.TenantID != "" && rc.TenantID == tenantID
}

// HasRole reports whether the caller holds exactly the given role.
func (e *Engine) HasRole(ctx context.Context, role Role) bool {
	rc := reqctx.From(ctx)
	return rc != nil && Role(rc.Role) == role
}

// HasAnyRole reports whether the caller holds one of the given roles.
func (e *Engine) HasAnyRole(ctx context.Context, roles ...Role) bool {
	rc := reqctx.From(ctx)
	if rc == nil {
		return false
	}
	for _, r := range roles {
		if Role(rc.Role) == r {
			return true
		}
	}
	return false
}

// HasMinRole reports whether the caller's role sits at or above min.
func (e *Engine) HasMinRole(ctx context.Context, min Role) bool {
	rc := reqctx.From(ctx)
	return rc != nil && Role(rc.Role).AtLeast(min)
}

// HasPermission reports whether the caller's effective permission set
// carries the permission code.
func (e *Engine) HasPermission(ctx context.Context, perm string) bool {
	rc := reqctx.From(ctx)
	return rc != nil && rc.HasPermission(perm)
}

// CanAccess authorizes access to a resource owned by resourceTenantID.
// A cross-tenant attempt by a tenant-group user returns NotFound rather
// than Forbidden: the response must not reveal that the resource exists.
func (e *Engine) CanAccess(ctx context.Context, resourceTenantID string, perm string) error {
	rc := reqctx.From(ctx)
	if rc == nil || rc.UserID == "" {
		return apperror.NewUnauthorized("authentication required")
	}
	if !e.IsTenantMember(ctx, resourceTenantID) {
		return apperror.NewNotFound("resource", resourceTenantID)
	}
	if perm != "" && !rc.HasPermission(perm) {
		return apperror.NewForbidden("permission denied")
	}
	return nil
}
