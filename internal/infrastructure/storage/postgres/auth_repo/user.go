// Package auth_repo provides PostgreSQL implementations for auth
// repositories. All queries run behind the tenant guard on the shared
// database.
package auth_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/filter"
	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/internal/infrastructure/storage/postgres/guard"
)

var userColumns = []string{
	"id", "tenant_id", "email", "password_hash", "first_name", "last_name",
	"role", "extra_permissions", "is_active", "email_verified",
	"email_verified_at", "last_login_at", "failed_login_attempts",
	"locked_until", "created_at", "updated_at", "deleted_at", "version",
}

// UserRepo implements auth.UserRepository on the guarded base.
type UserRepo struct {
	*guard.BaseGuardedRepo[*auth.User]
}

// NewUserRepo creates a user repository.
func NewUserRepo(txm *postgres.TxManager, auditor guard.Recorder) *UserRepo {
	return &UserRepo{
		BaseGuardedRepo: guard.NewBaseGuardedRepo(
			"users",
			userColumns,
			[]string{"email", "first_name", "last_name"},
			func() *auth.User { return &auth.User{} },
			txm,
			auditor,
		),
	}
}

// GetByEmail retrieves a user by email within the current tenant.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	scope, err := r.Scope(ctx, "GetByEmail")
	if err != nil {
		return nil, err
	}

	q := r.Builder().
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"email": email}).
		Where(squirrel.Eq{"deleted_at": nil}).
		Limit(1)
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var user auth.User
	if err := pgxscan.Get(ctx, r.Querier(ctx), &user, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", email)
		}
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return &user, nil
}

// Delete soft-deletes a user.
func (r *UserRepo) Delete(ctx context.Context, userID id.ID) error {
	return r.SoftDelete(ctx, userID)
}

// List retrieves users with filtering.
func (r *UserRepo) List(ctx context.Context, f auth.UserFilter) ([]auth.User, int, error) {
	lf := guard.ListFilter{
		Search:  f.Search,
		OrderBy: "email",
		Limit:   f.Limit,
		Offset:  f.Offset,
	}
	if f.IsActive != nil {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "is_active", Operator: filter.Equal, Value: *f.IsActive,
		})
	}
	if f.Role != "" {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "role", Operator: filter.Equal, Value: f.Role,
		})
	}

	result, err := r.BaseGuardedRepo.List(ctx, lf)
	if err != nil {
		return nil, 0, err
	}

	users := make([]auth.User, 0, len(result.Items))
	for _, u := range result.Items {
		users = append(users, *u)
	}
	return users, result.TotalCount, nil
}

// Exists checks if an email is taken anywhere on the platform. Email is
// the login identifier across tenants, backed by a unique index on
// users(email) where deleted_at is null, so the probe deliberately skips
// the tenant scope.
func (r *UserRepo) Exists(ctx context.Context, email string) (bool, error) {
	q := r.Builder().
		Select("1").
		From("users").
		Where(squirrel.Eq{"email": email}).
		Where(squirrel.Eq{"deleted_at": nil}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return true, nil
}

// CountByTenant returns the number of active users in the current tenant.
func (r *UserRepo) CountByTenant(ctx context.Context) (int, error) {
	scope, err := r.Scope(ctx, "CountByTenant")
	if err != nil {
		return 0, err
	}

	q := r.Builder().
		Select("COUNT(*)").
		From("users").
		Where(squirrel.Eq{"deleted_at": nil}).
		Where(squirrel.Eq{"is_active": true})
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := r.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

var _ auth.UserRepository = (*UserRepo)(nil)
