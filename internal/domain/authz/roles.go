// Package authz implements the role hierarchy and the route-guard
// predicate engine that gates every protected endpoint.
package authz

import "sort"

// Role is a named position in the access hierarchy. Roles are strictly
// ordered below the admin tier; each role carries every permission of the
// roles beneath it plus its own grants.
type Role string

const (
	RoleStaff         Role = "staff"
	RoleAccountant    Role = "accountant"
	RoleCFO           Role = "cfo"
	RoleTenantAdmin   Role = "tenant_admin"
	RoleFirmAdmin     Role = "firm_admin"
	RolePlatformAdmin Role = "platform_admin"
)

// Group partitions users by tenancy reach. Tenant-group users exist inside
// exactly one tenant; multi-tenant users (platform operators) may cross
// tenant boundaries under explicit audit.
type Group string

const (
	GroupTenant      Group = "tenant"
	GroupMultiTenant Group = "multi_tenant"
)

// Permission codes. The convention is "<resource>:<verb>".
const (
	PermInvoiceRead    = "invoice:read"
	PermInvoiceWrite   = "invoice:write"
	PermInvoiceApprove = "invoice:approve"
	PermInvoiceExport  = "invoice:export"
	PermReportRead     = "report:read"
	PermReportExport   = "report:export"
	PermUserManage     = "user:manage"
	PermRoleAssign     = "role:assign"
	PermTenantManage   = "tenant:manage"
	PermAuditRead      = "audit:read"
	PermPlatformManage = "platform:manage"
)

// rank orders roles for "at least" comparisons. Tenant and firm admins are
// peers; platform admin sits above both.
var rank = map[Role]int{
	RoleStaff:         1,
	RoleAccountant:    2,
	RoleCFO:           3,
	RoleTenantAdmin:   4,
	RoleFirmAdmin:     4,
	RolePlatformAdmin: 5,
}

// grants lists each role's OWN permissions; effective permissions are the
// union over every role at or below the user's rank.
var grants = map[Role][]string{
	RoleStaff:         {PermInvoiceRead},
	RoleAccountant:    {PermInvoiceWrite, PermReportRead},
	RoleCFO:           {PermInvoiceApprove, PermInvoiceExport, PermReportExport, PermAuditRead},
	RoleTenantAdmin:   {PermUserManage, PermRoleAssign, PermTenantManage},
	RoleFirmAdmin:     {PermUserManage, PermRoleAssign, PermTenantManage},
	RolePlatformAdmin: {PermPlatformManage},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast reports whether r sits at or above other in the hierarchy.
func (r Role) AtLeast(other Role) bool {
	return rank[r] >= rank[other] && rank[r] > 0
}

// Group returns the tenancy group the role belongs to.
func (r Role) Group() Group {
	if r == RolePlatformAdmin {
		return GroupMultiTenant
	}
	return GroupTenant
}

// PermissionsFor returns the effective permission set of a role: its own
// grants plus everything inherited from lower ranks. Extra per-user grants
// widen this set; nothing narrows it.
func PermissionsFor(role Role, extra ...string) []string {
	r, ok := rank[role]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var perms []string
	add := func(p string) {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	for granted, n := range rank {
		if n <= r {
			for _, p := range grants[granted] {
				add(p)
			}
		}
	}
	for _, p := range extra {
		add(p)
	}
	sort.Strings(perms)
	return perms
}

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
