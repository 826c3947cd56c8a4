package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/domain/audit"
	"ledgercore/internal/domain/filter"
)

type testEntity struct {
	ID       id.ID  `db:"id"`
	TenantID string `db:"tenant_id"`
	Name     string `db:"name"`
	Version  int    `db:"version"`
}

type recordedEvent struct {
	action     audit.Action
	entityType string
	details    map[string]any
}

type captureRecorder struct {
	events []recordedEvent
}

func (r *captureRecorder) Record(_ context.Context, action audit.Action, entityType, _ string, _ bool, details map[string]any) error {
	r.events = append(r.events, recordedEvent{action: action, entityType: entityType, details: details})
	return nil
}

func newTestRepo(rec Recorder) *BaseGuardedRepo[*testEntity] {
	return NewBaseGuardedRepo(
		"widgets",
		[]string{"id", "tenant_id", "name", "version", "created_at", "deleted_at"},
		[]string{"name"},
		func() *testEntity { return &testEntity{} },
		nil,
		rec,
	)
}

func tenantCtx(tenantID string) context.Context {
	return reqctx.With(context.Background(), &reqctx.Context{TenantID: tenantID})
}

func TestScopeInjectsTenantPredicate(t *testing.T) {
	repo := newTestRepo(nil)
	ctx := tenantCtx("tenant-a")

	scope, err := repo.Scope(ctx, "List")
	require.NoError(t, err)
	require.NotNil(t, scope)

	sql, args, err := repo.Builder().Select("id").From("widgets").Where(scope).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "tenant_id = $1")
	assert.Equal(t, []any{"tenant-a"}, args)
}

func TestScopeDeniedWithoutTenant(t *testing.T) {
	repo := newTestRepo(nil)

	_, err := repo.Scope(context.Background(), "List")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUncheckedDenied, appErr.Code)
	assert.Equal(t, "widgets.List", appErr.Details["caller"])
}

func TestScopeDenialRecordsViolation(t *testing.T) {
	rec := &captureRecorder{}
	repo := newTestRepo(rec)

	_, err := repo.Scope(context.Background(), "List")
	require.Error(t, err)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionViolation, rec.events[0].action)
	assert.Equal(t, "unchecked_query_denied", rec.events[0].details["violation"])
	assert.Equal(t, "widgets.List", rec.events[0].details["caller"])
}

func TestTenantScopeDenialRecordsViolation(t *testing.T) {
	rec := &captureRecorder{}

	_, _, err := TenantScope(context.Background(), rec, "action_tokens.Save")
	require.Error(t, err)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionViolation, rec.events[0].action)
	assert.Equal(t, "action_tokens.Save", rec.events[0].details["caller"])
}

func TestScopeUncheckedSessionSkipsPredicate(t *testing.T) {
	repo := newTestRepo(nil)
	rec := &captureRecorder{}

	ctx, err := OpenUnchecked(context.Background(), rec, "nightly retention purge")
	require.NoError(t, err)

	scope, err := repo.Scope(ctx, "List")
	require.NoError(t, err)
	assert.Nil(t, scope)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionRead, rec.events[0].action)
	assert.Equal(t, "unchecked_session", rec.events[0].entityType)
	assert.Equal(t, "nightly retention purge", rec.events[0].details["reason"])
	assert.NotEmpty(t, rec.events[0].details["caller"])
}

func TestOpenUncheckedRequiresReason(t *testing.T) {
	_, err := OpenUnchecked(context.Background(), nil, "")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestCreateRefusesForeignTenant(t *testing.T) {
	rec := &captureRecorder{}
	repo := newTestRepo(rec)
	ctx := tenantCtx("tenant-a")

	err := repo.Create(ctx, &testEntity{ID: id.New(), TenantID: "tenant-b", Name: "smuggled"})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeCrossTenant, appErr.Code)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionViolation, rec.events[0].action)
	assert.Equal(t, "widgets", rec.events[0].entityType)
	assert.Equal(t, "cross_tenant_create", rec.events[0].details["violation"])
}

func TestAdvancedFiltersGenerateSQL(t *testing.T) {
	repo := newTestRepo(nil)

	q := repo.Builder().Select("id").From("widgets")
	q, err := repo.applyAdvancedFilters(q, []filter.Item{
		{Field: "name", Operator: filter.Equal, Value: "ledger"},
		{Field: "version", Operator: filter.GreaterOrEqual, Value: 2},
		{Field: "deleted_at", Operator: filter.IsNull},
		{Field: "name", Operator: filter.Contains, Value: "led"},
	})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "name = $1")
	assert.Contains(t, sql, "version >= $2")
	assert.Contains(t, sql, "deleted_at IS NULL")
	assert.Contains(t, sql, "name ILIKE $3")
	assert.Equal(t, []any{"ledger", 2, "%led%"}, args)
}

func TestAdvancedFiltersRejectUnknownColumn(t *testing.T) {
	repo := newTestRepo(nil)

	q := repo.Builder().Select("id").From("widgets")
	_, err := repo.applyAdvancedFilters(q, []filter.Item{
		{Field: "password_hash", Operator: filter.Equal, Value: "x"},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestAdvancedFiltersRejectUnknownOperator(t *testing.T) {
	repo := newTestRepo(nil)

	q := repo.Builder().Select("id").From("widgets")
	_, err := repo.applyAdvancedFilters(q, []filter.Item{
		{Field: "name", Operator: "regex", Value: ".*"},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestParseOrderBy(t *testing.T) {
	repo := newTestRepo(nil)

	orderBy, err := repo.parseOrderBy("")
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC", orderBy)

	orderBy, err = repo.parseOrderBy("name desc")
	require.NoError(t, err)
	assert.Equal(t, "name DESC", orderBy)

	orderBy, err = repo.parseOrderBy("name")
	require.NoError(t, err)
	assert.Equal(t, "name ASC", orderBy)

	_, err = repo.parseOrderBy("password_hash; DROP TABLE widgets")
	require.Error(t, err)
}
