package authz

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"ledgercore/internal/core/reqctx"
)

// Guard is a compiled route predicate. Expressions are written in CEL over
// the request identity, e.g.:
//
//	authenticated && "invoice:write" in permissions
//	role in ["cfo", "tenant_admin"] || group == "multi_tenant"
//	plan != "free" && "report:export" in permissions
//
// Guards compile once at router construction; evaluation per request is a
// map build plus a program run, no allocation-heavy reflection.
type Guard struct {
	expr string
	prg  cel.Program
}

var guardEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("role", cel.StringType),
		cel.Variable("group", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("plan", cel.StringType),
		cel.Variable("permissions", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("authz: cel environment: %v", err))
	}
	return env
}()

// CompileGuard compiles a CEL predicate. The expression must evaluate to
// bool; anything else is rejected at compile time so misconfigured routes
// fail at startup, not per request.
func CompileGuard(expr string) (*Guard, error) {
	ast, issues := guardEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile guard %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard %q: expression must be boolean, got %s", expr, ast.OutputType())
	}
	prg, err := guardEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program guard %q: %w", expr, err)
	}
	return &Guard{expr: expr, prg: prg}, nil
}

// MustCompileGuard is CompileGuard for static route tables.
func MustCompileGuard(expr string) *Guard {
	g, err := CompileGuard(expr)
	if err != nil {
		panic(err)
	}
	return g
}

// Expr returns the source expression, for audit records on denial.
func (g *Guard) Expr() string {
	return g.expr
}

// Allow evaluates the guard against the request context. A missing or
// anonymous context still evaluates: guards like "!authenticated" are legal
// on public routes. Evaluation errors deny.
func (g *Guard) Allow(ctx context.Context) (bool, error) {
	rc := reqctx.From(ctx)
	if rc == nil {
		rc = &reqctx.Context{}
	}
	perms := rc.Permissions
	if perms == nil {
		perms = []string{}
	}
	out, _, err := g.prg.Eval(map[string]any{
		"authenticated": rc.UserID != "",
		"user_id":       rc.UserID,
		"email":         rc.Email,
		"role":          rc.Role,
		"group":         rc.Group,
		"tenant_id":     rc.TenantID,
		"plan":          rc.TenantPlan,
		"permissions":   perms,
	})
	if err != nil {
		return false, fmt.Errorf("eval guard %q: %w", g.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard %q: non-boolean result", g.expr)
	}
	return allowed, nil
}
