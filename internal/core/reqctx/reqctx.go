// Package reqctx carries the per-request execution context: the
// (tenant, user, role, permissions, request-id) tuple every downstream
// operation depends on. The store is write-once: middleware assembles it
// after tenant resolution, deep code reads it, and there is no mutation API.
package reqctx

import (
	"context"
)

// Context is the per-request ambient state. Values are copied into the
// request's context.Context; a Context instance is never shared between
// requests.
type Context struct {
	TenantID   string
	TenantSlug string
	TenantPlan string

	UserID string
	Email  string
	Role   string
	Group  string

	Permissions []string

	RequestID string
	ClientIP  string
	UserAgent string
}

// HasPermission reports whether the permission list carries p.
func (c *Context) HasPermission(p string) bool {
	for _, have := range c.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// With stores the request context. Called exactly once per request by the
// context middleware, and by background scopes.
func With(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// From returns the request context, or nil when none is set.
func From(ctx context.Context) *Context {
	if v, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return v
	}
	return nil
}

// TenantID returns the current tenant id or empty string.
func TenantID(ctx context.Context) string {
	if rc := From(ctx); rc != nil {
		return rc.TenantID
	}
	return ""
}

// UserID returns the current user id or empty string.
func UserID(ctx context.Context) string {
	if rc := From(ctx); rc != nil {
		return rc.UserID
	}
	return ""
}

// RequestID returns the current request id, falling back to the trace slot
// populated before authentication.
func RequestID(ctx context.Context) string {
	if rc := From(ctx); rc != nil && rc.RequestID != "" {
		return rc.RequestID
	}
	if t := TraceFrom(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// OpenScope adopts a context for background work. The returned context is
// detached from the parent's cancellation and deadline so a finished request
// does not kill the worker, but carries the given request context explicitly.
// The close function must be called when the work completes; a worker that
// inherits a request's scope ambiently instead of opening its own violates
// the contract.
func OpenScope(parent context.Context, rc *Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(parent)
	ctx, cancel := context.WithCancel(With(detached, rc))
	return ctx, cancel
}

// --- Trace ---

// Trace holds request identifiers available before authentication.
type Trace struct {
	RequestID string
	TraceID   string
}

type traceKey struct{}

// WithTrace stores trace identifiers; set by the first middleware.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFrom returns trace identifiers or nil.
func TraceFrom(ctx context.Context) *Trace {
	if v, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return v
	}
	return nil
}
