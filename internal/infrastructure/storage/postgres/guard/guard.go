// Package guard implements tenant-scoped data access. Every repository
// built on it injects the current tenant into each statement: reads and
// mutations carry a tenant_id predicate, creates stamp the resolved
// tenant. A query with no tenant in scope is refused unless the caller
// opened an explicit, audited unchecked session.
package guard

import (
	"context"
	"fmt"
	"runtime"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/domain/audit"
	"ledgercore/pkg/logger"
)

// Recorder records guard events to the audit log.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, entityType, entityID string, success bool, details map[string]any) error
}

type uncheckedKey struct{}

type uncheckedScope struct {
	reason string
	caller string
}

// OpenUnchecked opens a cross-tenant session for platform-level work:
// migrations, per-tenant maintenance loops, support tooling. The session is
// recorded to the audit log at open; repositories then accept tenant-less
// queries under this context.
func OpenUnchecked(ctx context.Context, rec Recorder, reason string) (context.Context, error) {
	if reason == "" {
		return nil, apperror.NewValidation("unchecked session requires a reason")
	}
	caller := callerName(2)
	if rec != nil {
		err := rec.Record(ctx, audit.ActionRead, "unchecked_session", "", true,
			map[string]any{"reason": reason, "caller": caller})
		if err != nil {
			return nil, err
		}
	}
	logger.Warn(ctx, "unchecked data session opened", "reason", reason, "caller", caller)
	return context.WithValue(ctx, uncheckedKey{}, &uncheckedScope{reason: reason, caller: caller}), nil
}

func uncheckedFrom(ctx context.Context) *uncheckedScope {
	if sc, ok := ctx.Value(uncheckedKey{}).(*uncheckedScope); ok {
		return sc
	}
	return nil
}

// tenantScope resolves the tenant predicate for a statement. Returns the
// tenant id, or ok=false for a sanctioned unchecked session, or an error
// when neither applies. A denial is itself a security incident: it is
// recorded as a violation before the refusal is returned.
func tenantScope(ctx context.Context, rec Recorder, operation string) (tenantID string, scoped bool, err error) {
	if tid := reqctx.TenantID(ctx); tid != "" {
		return tid, true, nil
	}
	if uncheckedFrom(ctx) != nil {
		return "", false, nil
	}
	if rec != nil {
		_ = rec.Record(ctx, audit.ActionViolation, "", "", false,
			map[string]any{"violation": "unchecked_query_denied", "caller": operation})
	}
	logger.Warn(ctx, "unscoped query refused", "operation", operation)
	return "", false, apperror.NewUncheckedDenied(operation)
}

// TenantScope resolves the current tenant for hand-written statements in
// repositories that do not embed BaseGuardedRepo. Same contract as the
// guarded methods: a tenant id, or scoped=false inside an unchecked
// session, or an error.
func TenantScope(ctx context.Context, rec Recorder, operation string) (tenantID string, scoped bool, err error) {
	return tenantScope(ctx, rec, operation)
}

func callerName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	return fn.Name()
}

// opName labels a refused operation for the error detail.
func opName(table, method string) string {
	return fmt.Sprintf("%s.%s", table, method)
}
