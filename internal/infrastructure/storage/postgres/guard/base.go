package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/audit"
	"ledgercore/internal/domain/filter"
	"ledgercore/internal/infrastructure/storage/postgres"
)

// ListFilter narrows guarded listings.
type ListFilter struct {
	Search         string
	IncludeDeleted bool
	IDs            []id.ID
	Advanced       []filter.Item
	OrderBy        string
	Limit          int
	Offset         int
}

// ListResult is a paginated listing.
type ListResult[T any] struct {
	Items      []T
	TotalCount int
	Limit      int
	Offset     int
}

// BaseGuardedRepo provides tenant-scoped CRUD for entities carrying
// id / tenant_id / version / deleted_at columns. Embed it in concrete
// repositories.
type BaseGuardedRepo[T any] struct {
	table      string
	selectCols []string
	searchCols []string
	newFn      func() T
	txm        *postgres.TxManager
	auditor    Recorder
}

// NewBaseGuardedRepo creates a guarded repository. searchCols are the
// columns the free-text Search filter matches against.
func NewBaseGuardedRepo[T any](
	table string,
	selectCols []string,
	searchCols []string,
	newFn func() T,
	txm *postgres.TxManager,
	auditor Recorder,
) *BaseGuardedRepo[T] {
	return &BaseGuardedRepo[T]{
		table:      table,
		selectCols: selectCols,
		searchCols: searchCols,
		newFn:      newFn,
		txm:        txm,
		auditor:    auditor,
	}
}

// Builder returns a squirrel builder with PostgreSQL placeholders.
func (r *BaseGuardedRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Querier exposes the transaction-aware querier for custom statements in
// concrete repositories.
func (r *BaseGuardedRepo[T]) Querier(ctx context.Context) postgres.Querier {
	return r.txm.GetQuerier(ctx)
}

// Table returns the repository's table name.
func (r *BaseGuardedRepo[T]) Table() string {
	return r.table
}

// Auditor returns the guard's audit recorder, for hand-written statements
// that resolve the tenant scope themselves.
func (r *BaseGuardedRepo[T]) Auditor() Recorder {
	return r.auditor
}

// Scope returns the tenant predicate for method, or no predicate inside an
// unchecked session.
func (r *BaseGuardedRepo[T]) Scope(ctx context.Context, method string) (squirrel.Sqlizer, error) {
	tenantID, scoped, err := tenantScope(ctx, r.auditor, opName(r.table, method))
	if err != nil {
		return nil, err
	}
	if !scoped {
		return nil, nil
	}
	return squirrel.Eq{"tenant_id": tenantID}, nil
}

// Create inserts the entity, stamping the resolved tenant. An entity that
// already names a different tenant is a cross-tenant violation: refused
// and audited.
func (r *BaseGuardedRepo[T]) Create(ctx context.Context, entity T) error {
	data := postgres.StructToMap(entity)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in entity")
	}

	tenantID, scoped, err := tenantScope(ctx, r.auditor, opName(r.table, "Create"))
	if err != nil {
		return err
	}
	if scoped {
		if existing, ok := data["tenant_id"].(string); ok && existing != "" && existing != tenantID {
			if r.auditor != nil {
				_ = r.auditor.Record(ctx, audit.ActionViolation, r.table, fmt.Sprint(data["id"]), false,
					map[string]any{"violation": "cross_tenant_create", "claimed_tenant": existing})
			}
			return apperror.NewCrossTenant()
		}
		data["tenant_id"] = tenantID
	}

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	sql, args, err := r.Builder().Insert(r.table).SetMap(filtered).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

// GetByID retrieves an entity within the tenant scope. A row owned by
// another tenant does not match the predicate and reports as not found.
func (r *BaseGuardedRepo[T]) GetByID(ctx context.Context, entityID id.ID) (T, error) {
	entity := r.newFn()

	scope, err := r.Scope(ctx, "GetByID")
	if err != nil {
		return entity, err
	}

	q := r.Builder().
		Select(r.selectCols...).
		From(r.table).
		Where(squirrel.Eq{"id": entityID}).
		Where(notDeleted()).
		Limit(1)
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return entity, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.Querier(ctx), entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity, apperror.NewNotFound(r.table, entityID.String())
		}
		return entity, fmt.Errorf("get %s by id: %w", r.table, err)
	}
	return entity, nil
}

// Update modifies an entity with optimistic locking, within tenant scope.
func (r *BaseGuardedRepo[T]) Update(ctx context.Context, entity T) error {
	data := postgres.StructToMap(entity)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in entity")
	}
	entityID, ok := data["id"]
	if !ok {
		return fmt.Errorf("entity has no 'id' field with db tag")
	}
	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("entity has no 'version' field or it is not an int")
	}

	scope, err := r.Scope(ctx, "Update")
	if err != nil {
		return err
	}

	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		switch col {
		case "id", "version", "tenant_id":
			// id is immutable, version belongs to the lock, tenant_id
			// never moves between tenants.
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.Builder().
		Update(r.table).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID}).
		Where(squirrel.Eq{"version": version})
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	if result.RowsAffected() == 0 {
		// Either a stale version or a row outside the tenant scope; both
		// read the same from here.
		return apperror.NewConcurrentModification(r.table, entityID)
	}
	return nil
}

// SoftDelete marks the entity deleted within tenant scope.
func (r *BaseGuardedRepo[T]) SoftDelete(ctx context.Context, entityID id.ID) error {
	scope, err := r.Scope(ctx, "SoftDelete")
	if err != nil {
		return err
	}

	q := r.Builder().
		Update(r.table).
		Set("deleted_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID}).
		Where(notDeleted())
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(r.table, entityID.String())
	}
	return nil
}

// Exists checks entity existence within tenant scope.
func (r *BaseGuardedRepo[T]) Exists(ctx context.Context, entityID id.ID) (bool, error) {
	scope, err := r.Scope(ctx, "Exists")
	if err != nil {
		return false, err
	}

	q := r.Builder().
		Select("1").
		From(r.table).
		Where(squirrel.Eq{"id": entityID}).
		Where(notDeleted()).
		Limit(1)
	if scope != nil {
		q = q.Where(scope)
	}

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
		return false, fmt.Errorf("exists %s: %w", r.table, err)
	}
	return true, nil
}

// List retrieves entities with filtering and pagination, within tenant
// scope.
func (r *BaseGuardedRepo[T]) List(ctx context.Context, f ListFilter) (ListResult[T], error) {
	result := ListResult[T]{Limit: f.Limit, Offset: f.Offset}

	scope, err := r.Scope(ctx, "List")
	if err != nil {
		return result, err
	}

	q := r.Builder().Select(r.selectCols...).From(r.table)
	if scope != nil {
		q = q.Where(scope)
	}
	if !f.IncludeDeleted {
		q = q.Where(notDeleted())
	}
	if f.Search != "" && len(r.searchCols) > 0 {
		pattern := "%" + f.Search + "%"
		or := make(squirrel.Or, 0, len(r.searchCols))
		for _, col := range r.searchCols {
			or = append(or, squirrel.ILike{col: pattern})
		}
		q = q.Where(or)
	}
	if len(f.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": f.IDs})
	}
	q, err = r.applyAdvancedFilters(q, f.Advanced)
	if err != nil {
		return result, err
	}

	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := r.Querier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count %s: %w", r.table, err)
	}

	orderBy, err := r.parseOrderBy(f.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.Querier(ctx), &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list %s: %w", r.table, err)
	}
	return result, nil
}

// applyAdvancedFilters translates filter items, validating field names
// against the column whitelist.
func (r *BaseGuardedRepo[T]) applyAdvancedFilters(q squirrel.SelectBuilder, items []filter.Item) (squirrel.SelectBuilder, error) {
	validCols := make(map[string]bool, len(r.selectCols))
	for _, col := range r.selectCols {
		validCols[col] = true
	}

	for _, item := range items {
		if !validCols[item.Field] {
			return q, apperror.NewValidation("invalid filter column").WithDetail("field", item.Field)
		}
		switch item.Operator {
		case filter.Equal:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotEqual:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.Less:
			q = q.Where(squirrel.Lt{item.Field: item.Value})
		case filter.LessOrEqual:
			q = q.Where(squirrel.LtOrEq{item.Field: item.Value})
		case filter.Greater:
			q = q.Where(squirrel.Gt{item.Field: item.Value})
		case filter.GreaterOrEqual:
			q = q.Where(squirrel.GtOrEq{item.Field: item.Value})
		case filter.InList:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotInList:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.IsNull:
			q = q.Where(squirrel.Eq{item.Field: nil})
		case filter.IsNotNull:
			q = q.Where(squirrel.NotEq{item.Field: nil})
		case filter.Contains:
			q = q.Where(squirrel.ILike{item.Field: fmt.Sprintf("%%%v%%", item.Value)})
		case filter.NotContains:
			q = q.Where(squirrel.NotILike{item.Field: fmt.Sprintf("%%%v%%", item.Value)})
		default:
			return q, apperror.NewValidation("unknown filter operator").WithDetail("operator", string(item.Operator))
		}
	}
	return q, nil
}

func (r *BaseGuardedRepo[T]) parseOrderBy(orderBy string) (string, error) {
	if orderBy == "" {
		return "created_at DESC", nil
	}
	col := orderBy
	dir := "ASC"
	if n := len(orderBy); n > 5 && orderBy[n-5:] == " desc" {
		col, dir = orderBy[:n-5], "DESC"
	} else if n := len(orderBy); n > 4 && orderBy[n-4:] == " asc" {
		col = orderBy[:n-4]
	}
	for _, valid := range r.selectCols {
		if valid == col {
			return col + " " + dir, nil
		}
	}
	return "", apperror.NewValidation("invalid order column").WithDetail("order_by", orderBy)
}

func notDeleted() squirrel.Sqlizer {
	return squirrel.Eq{"deleted_at": nil}
}
