package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
)

func ctxFor(rc *reqctx.Context) context.Context {
	return reqctx.With(context.Background(), rc)
}

func TestPermissionsForInheritsLowerRanks(t *testing.T) {
	staff := PermissionsFor(RoleStaff)
	assert.Equal(t, []string{PermInvoiceRead}, staff)

	accountant := PermissionsFor(RoleAccountant)
	assert.Contains(t, accountant, PermInvoiceRead)
	assert.Contains(t, accountant, PermInvoiceWrite)
	assert.NotContains(t, accountant, PermInvoiceApprove)

	cfo := PermissionsFor(RoleCFO)
	assert.Contains(t, cfo, PermInvoiceApprove)
	assert.Contains(t, cfo, PermAuditRead)
	assert.NotContains(t, cfo, PermUserManage)

	admin := PermissionsFor(RoleTenantAdmin)
	assert.Contains(t, admin, PermUserManage)
	assert.Contains(t, admin, PermInvoiceRead)
	assert.NotContains(t, admin, PermPlatformManage)

	platform := PermissionsFor(RolePlatformAdmin)
	assert.Contains(t, platform, PermPlatformManage)
	assert.Contains(t, platform, PermTenantManage)
}

func TestPermissionsForExtraGrantsWiden(t *testing.T) {
	perms := PermissionsFor(RoleStaff, PermInvoiceExport, PermInvoiceRead)
	assert.Contains(t, perms, PermInvoiceExport)
	// Duplicates collapse.
	assert.Equal(t, 2, len(perms))
}

func TestPermissionsForUnknownRole(t *testing.T) {
	assert.Nil(t, PermissionsFor(Role("superuser")))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleCFO.AtLeast(RoleStaff))
	assert.True(t, RoleTenantAdmin.AtLeast(RoleFirmAdmin)) // peers
	assert.False(t, RoleAccountant.AtLeast(RoleCFO))
	assert.False(t, Role("superuser").AtLeast(RoleStaff))
}

func TestRoleGroup(t *testing.T) {
	assert.Equal(t, GroupMultiTenant, RolePlatformAdmin.Group())
	assert.Equal(t, GroupTenant, RoleFirmAdmin.Group())
}

func TestEngineTenantMembership(t *testing.T) {
	e := NewEngine()

	member := ctxFor(&reqctx.Context{UserID: "u1", TenantID: "t1", Group: string(GroupTenant)})
	assert.True(t, e.IsTenantMember(member, "t1"))
	assert.False(t, e.IsTenantMember(member, "t2"))

	operator := ctxFor(&reqctx.Context{UserID: "u2", Group: string(GroupMultiTenant)})
	assert.True(t, e.IsTenantMember(operator, "t1"))
	assert.True(t, e.IsTenantMember(operator, "t2"))

	assert.False(t, e.IsTenantMember(context.Background(), "t1"))
}

func TestEngineCanAccessCrossTenantIsNotFound(t *testing.T) {
	e := NewEngine()
	ctx := ctxFor(&reqctx.Context{
		UserID: "u1", TenantID: "t1", Role: string(RoleAccountant),
		Group: string(GroupTenant), Permissions: PermissionsFor(RoleAccountant),
	})

	require.NoError(t, e.CanAccess(ctx, "t1", PermInvoiceRead))

	err := e.CanAccess(ctx, "t2", PermInvoiceRead)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeNotFound, appErr.Code)

	err = e.CanAccess(ctx, "t1", PermInvoiceApprove)
	require.Error(t, err)
	appErr, _ = apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)

	err = e.CanAccess(context.Background(), "t1", PermInvoiceRead)
	require.Error(t, err)
	appErr, _ = apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeUnauthorized, appErr.Code)
}

func TestGuardPermissionPredicate(t *testing.T) {
	g := MustCompileGuard(`authenticated && "invoice:write" in permissions`)

	allowed, err := g.Allow(ctxFor(&reqctx.Context{
		UserID: "u1", Permissions: PermissionsFor(RoleAccountant),
	}))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = g.Allow(ctxFor(&reqctx.Context{
		UserID: "u1", Permissions: PermissionsFor(RoleStaff),
	}))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGuardRoleAndPlanPredicates(t *testing.T) {
	g := MustCompileGuard(`role in ["cfo", "tenant_admin"] || group == "multi_tenant"`)

	allowed, err := g.Allow(ctxFor(&reqctx.Context{UserID: "u1", Role: "cfo"}))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = g.Allow(ctxFor(&reqctx.Context{UserID: "u1", Role: "staff", Group: "multi_tenant"}))
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = g.Allow(ctxFor(&reqctx.Context{UserID: "u1", Role: "staff", Group: "tenant"}))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGuardAnonymousContext(t *testing.T) {
	g := MustCompileGuard(`!authenticated`)

	allowed, err := g.Allow(context.Background())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCompileGuardRejectsNonBoolean(t *testing.T) {
	_, err := CompileGuard(`role`)
	assert.Error(t, err)

	_, err = CompileGuard(`role ==`)
	assert.Error(t, err)
}
