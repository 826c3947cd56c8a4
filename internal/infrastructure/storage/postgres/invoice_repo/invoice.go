// Package invoice_repo provides the PostgreSQL implementation of the
// invoice repository. Headers live in invoices, lines in invoice_lines;
// both carry tenant_id and every statement runs behind the tenant guard.
package invoice_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/filter"
	"ledgercore/internal/domain/invoice"
	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/internal/infrastructure/storage/postgres/guard"
)

var invoiceColumns = []string{
	"id", "tenant_id", "number", "counterparty", "issue_date", "due_date",
	"currency", "status", "subtotal", "tax_total", "total", "notes",
	"created_by", "updated_by", "created_at", "updated_at", "deleted_at",
	"version",
}

var lineColumns = []string{
	"line_id", "line_no", "description", "quantity", "unit_price",
	"tax_rate", "tax_amount", "amount",
}

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	*guard.BaseGuardedRepo[*invoice.Invoice]
	txm *postgres.TxManager
}

// NewInvoiceRepo creates an invoice repository.
func NewInvoiceRepo(txm *postgres.TxManager, auditor guard.Recorder) *InvoiceRepo {
	return &InvoiceRepo{
		BaseGuardedRepo: guard.NewBaseGuardedRepo(
			"invoices",
			invoiceColumns,
			[]string{"number", "counterparty", "notes"},
			func() *invoice.Invoice { return &invoice.Invoice{} },
			txm,
			auditor,
		),
		txm: txm,
	}
}

// Create inserts the invoice header and its lines.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := r.BaseGuardedRepo.Create(ctx, inv); err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

// GetByID retrieves an invoice with its lines within the current tenant.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	inv, err := r.BaseGuardedRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Update modifies the header with optimistic locking and replaces the
// lines. Line replacement rides the header's version check: a stale
// header fails before any line is touched.
func (r *InvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	if err := r.BaseGuardedRepo.Update(ctx, inv); err != nil {
		return err
	}
	if err := r.deleteLines(ctx, inv.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, inv)
}

// Delete soft-deletes an invoice. Lines stay in place; all reads go
// through the header.
func (r *InvoiceRepo) Delete(ctx context.Context, invoiceID id.ID) error {
	return r.SoftDelete(ctx, invoiceID)
}

// List retrieves invoice headers with filtering. Lines are not loaded in
// listings.
func (r *InvoiceRepo) List(ctx context.Context, f invoice.Filter) ([]invoice.Invoice, int, error) {
	lf := guard.ListFilter{
		Search:  f.Search,
		OrderBy: "issue_date desc",
		Limit:   f.Limit,
		Offset:  f.Offset,
	}
	if f.Status != "" {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "status", Operator: filter.Equal, Value: string(f.Status),
		})
	}
	if f.Counterparty != "" {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "counterparty", Operator: filter.Contains, Value: f.Counterparty,
		})
	}
	if !f.IssuedSince.IsZero() {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "issue_date", Operator: filter.GreaterOrEqual, Value: f.IssuedSince,
		})
	}
	if !f.IssuedUntil.IsZero() {
		lf.Advanced = append(lf.Advanced, filter.Item{
			Field: "issue_date", Operator: filter.LessOrEqual, Value: f.IssuedUntil,
		})
	}

	result, err := r.BaseGuardedRepo.List(ctx, lf)
	if err != nil {
		return nil, 0, err
	}

	invoices := make([]invoice.Invoice, 0, len(result.Items))
	for _, inv := range result.Items {
		invoices = append(invoices, *inv)
	}
	return invoices, result.TotalCount, nil
}

// NextNumber produces the next sequential invoice number for the tenant
// and year. The per-tenant counter row is upserted atomically, so
// concurrent issuers never share a number.
func (r *InvoiceRepo) NextNumber(ctx context.Context, year int) (string, error) {
	tenantID, scoped, err := guard.TenantScope(ctx, r.Auditor(), "invoices.NextNumber")
	if err != nil {
		return "", err
	}
	if !scoped {
		return "", fmt.Errorf("invoice numbering requires a tenant")
	}

	query := `
		INSERT INTO invoice_numbers (tenant_id, year, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year)
		DO UPDATE SET counter = invoice_numbers.counter + 1
		RETURNING counter
	`
	var counter int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, query, tenantID, year).Scan(&counter); err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%d-%06d", year, counter), nil
}

func (r *InvoiceRepo) insertLines(ctx context.Context, inv *invoice.Invoice) error {
	if len(inv.Lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert("invoice_lines").
		Columns(append([]string{"invoice_id", "tenant_id"}, lineColumns...)...)
	for _, line := range inv.Lines {
		q = q.Values(
			inv.ID, inv.TenantID,
			line.LineID, line.LineNo, line.Description, line.Quantity,
			line.UnitPrice, line.TaxRate, line.TaxAmount, line.Amount,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines insert: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert invoice lines: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) loadLines(ctx context.Context, inv *invoice.Invoice) error {
	q := r.Builder().
		Select(lineColumns...).
		From("invoice_lines").
		Where(squirrel.Eq{"invoice_id": inv.ID}).
		Where(squirrel.Eq{"tenant_id": inv.TenantID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.Querier(ctx), &inv.Lines, sql, args...); err != nil {
		return fmt.Errorf("load invoice lines: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) deleteLines(ctx context.Context, invoiceID id.ID) error {
	scope, err := r.Scope(ctx, "deleteLines")
	if err != nil {
		return err
	}

	q := r.Builder().Delete("invoice_lines").Where(squirrel.Eq{"invoice_id": invoiceID})
	if scope != nil {
		q = q.Where(scope)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines delete: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete invoice lines: %w", err)
	}
	return nil
}

var _ invoice.Repository = (*InvoiceRepo)(nil)
