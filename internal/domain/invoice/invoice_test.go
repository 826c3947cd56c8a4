package invoice

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/domain/audit"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAddLineTotals(t *testing.T) {
	inv := New("t1", "Globex GmbH", "EUR")
	inv.AddLine("Consulting", d("10"), d("150.00"), d("19"))
	inv.AddLine("Travel", d("1"), d("437.50"), d("7"))

	assert.True(t, inv.Subtotal.Equal(d("1937.50")), inv.Subtotal.String())
	assert.True(t, inv.TaxTotal.Equal(d("315.63")), inv.TaxTotal.String())
	assert.True(t, inv.Total.Equal(d("2253.13")), inv.Total.String())
	assert.Equal(t, 2, inv.Lines[1].LineNo)
}

func TestTaxRoundsPerLine(t *testing.T) {
	inv := New("t1", "Acme", "USD")
	// 3 * 0.10 * 8.25% = 0.02475, rounds to 0.02 on the line.
	inv.AddLine("Widgets", d("3"), d("0.10"), d("8.25"))
	assert.True(t, inv.TaxTotal.Equal(d("0.02")), inv.TaxTotal.String())
}

func TestValidate(t *testing.T) {
	inv := New("t1", "Acme", "USD")
	err := inv.Validate(context.Background())
	require.Error(t, err) // no lines

	inv.AddLine("a", d("1"), d("10"), d("0"))
	require.NoError(t, inv.Validate(context.Background()))

	inv.Lines[0].Quantity = d("-1")
	assert.Error(t, inv.Validate(context.Background()))

	inv2 := New("t1", "Acme", "DOLLARS")
	inv2.AddLine("a", d("1"), d("10"), d("0"))
	assert.Error(t, inv2.Validate(context.Background()))
}

func TestStatusTransitions(t *testing.T) {
	inv := New("t1", "Acme", "USD")
	require.NoError(t, inv.transition(StatusApproved))
	require.NoError(t, inv.transition(StatusExported))

	// Exported is terminal.
	err := inv.transition(StatusVoid)
	require.Error(t, err)

	inv2 := New("t1", "Acme", "USD")
	require.NoError(t, inv2.transition(StatusVoid))
	assert.Error(t, inv2.transition(StatusApproved))
}

// --- service tests ---

type memRepo struct {
	mu       sync.Mutex
	invoices map[id.ID]*Invoice
	seq      int
}

func newMemRepo() *memRepo {
	return &memRepo{invoices: map[id.ID]*Invoice{}}
}

func (r *memRepo) Create(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[invoiceID]
	if !ok || inv.DeletedAt != nil || inv.TenantID != reqctx.TenantID(ctx) {
		return nil, apperror.NewNotFound("invoice", invoiceID.String())
	}
	cp := *inv
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	cp.Version++
	r.invoices[inv.ID] = &cp
	return nil
}

func (r *memRepo) Delete(_ context.Context, invoiceID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.invoices[invoiceID].DeletedAt = &now
	return nil
}

func (r *memRepo) List(context.Context, Filter) ([]Invoice, int, error) {
	return nil, 0, nil
}

func (r *memRepo) NextNumber(_ context.Context, year int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("INV-%d-%06d", year, r.seq), nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordAuditor struct {
	mu      sync.Mutex
	actions []audit.Action
	fail    bool
}

func (a *recordAuditor) Record(_ context.Context, action audit.Action, _, _ string, _ bool, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail && action.Critical() {
		return apperror.NewAuditUnavailable(assert.AnError)
	}
	a.actions = append(a.actions, action)
	return nil
}

func tenantCtx() context.Context {
	return reqctx.With(context.Background(), &reqctx.Context{TenantID: "t1", UserID: "u1"})
}

func newTestService() (*Service, *memRepo, *recordAuditor) {
	repo := newMemRepo()
	auditor := &recordAuditor{}
	return NewService(repo, passthroughTx{}, auditor), repo, auditor
}

func draft(t *testing.T, svc *Service, ctx context.Context) *Invoice {
	t.Helper()
	inv := New("", "Acme Corp", "USD")
	inv.AddLine("Services", d("2"), d("500"), d("20"))
	require.NoError(t, svc.Create(ctx, inv))
	return inv
}

func TestServiceCreateAssignsTenantAndNumber(t *testing.T) {
	svc, _, auditor := newTestService()
	ctx := tenantCtx()

	inv := draft(t, svc, ctx)
	assert.Equal(t, "t1", inv.TenantID)
	assert.Equal(t, "u1", inv.CreatedBy)
	assert.Contains(t, inv.Number, "INV-")
	assert.Contains(t, auditor.actions, audit.ActionCreate)
}

func TestServiceCreateRequiresTenant(t *testing.T) {
	svc, _, _ := newTestService()
	inv := New("", "Acme Corp", "USD")
	inv.AddLine("Services", d("1"), d("10"), d("0"))

	err := svc.Create(context.Background(), inv)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeTenantRequired, appErr.Code)
}

func TestServiceUpdateOnlyDraft(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)

	_, err := svc.Approve(ctx, inv.ID)
	require.NoError(t, err)

	updated, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	err = svc.Update(ctx, updated)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeConflict, appErr.Code)
}

func TestServiceUpdateDetectsStaleVersion(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)

	stale, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	fresh, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)

	fresh.Notes = "first writer"
	require.NoError(t, svc.Update(ctx, fresh))

	stale.Notes = "second writer"
	err = svc.Update(ctx, stale)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeConcurrentModification, appErr.Code)
}

func TestServiceExportRequiresApproval(t *testing.T) {
	svc, _, auditor := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)

	_, err := svc.Export(ctx, inv.ID)
	require.Error(t, err) // draft cannot export

	_, err = svc.Approve(ctx, inv.ID)
	require.NoError(t, err)
	exported, err := svc.Export(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExported, exported.Status)
	assert.Contains(t, auditor.actions, audit.ActionExport)
}

func TestServiceExportFailsWhenAuditDown(t *testing.T) {
	svc, repo, auditor := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)
	_, err := svc.Approve(ctx, inv.ID)
	require.NoError(t, err)

	auditor.fail = true
	_, err = svc.Export(ctx, inv.ID)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeAuditUnavailable, appErr.Code)
	_ = repo
}

func TestServiceMutationsFailWhenAuditDown(t *testing.T) {
	svc, repo, auditor := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)

	auditor.fail = true

	fresh := New("", "Acme Corp", "USD")
	fresh.AddLine("Services", d("1"), d("10"), d("0"))
	err := svc.Create(ctx, fresh)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeAuditUnavailable, appErr.Code)

	current, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	current.Notes = "updated"
	err = svc.Update(ctx, current)
	require.Error(t, err)
	appErr, _ = apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeAuditUnavailable, appErr.Code)

	_, err = svc.Approve(ctx, inv.ID)
	require.Error(t, err)
	appErr, _ = apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeAuditUnavailable, appErr.Code)
	_ = repo
}

func TestServiceDeleteOnlyDraftAndAudits(t *testing.T) {
	svc, _, auditor := newTestService()
	ctx := tenantCtx()
	inv := draft(t, svc, ctx)

	require.NoError(t, svc.Delete(ctx, inv.ID))
	assert.Contains(t, auditor.actions, audit.ActionDelete)

	_, err := svc.Get(ctx, inv.ID)
	assert.Error(t, err)
}

func TestServiceCrossTenantGetIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	inv := draft(t, svc, tenantCtx())

	otherCtx := reqctx.With(context.Background(), &reqctx.Context{TenantID: "t2", UserID: "u9"})
	_, err := svc.Get(otherCtx, inv.ID)
	require.Error(t, err)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeNotFound, appErr.Code)
}
