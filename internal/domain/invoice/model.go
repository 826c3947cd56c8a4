// Package invoice provides the invoice document: the sample tenant-owned
// entity every data-access layer feature is exercised against.
package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusExported Status = "exported"
	StatusVoid     Status = "void"
)

// Invoice is a tenant-owned accounting document. Amounts are decimals, not
// floats; money never rounds through binary fractions.
type Invoice struct {
	ID           id.ID           `db:"id" json:"id"`
	TenantID     string          `db:"tenant_id" json:"tenantId"`
	Number       string          `db:"number" json:"number"`
	Counterparty string          `db:"counterparty" json:"counterparty"`
	IssueDate    time.Time       `db:"issue_date" json:"issueDate"`
	DueDate      *time.Time      `db:"due_date" json:"dueDate,omitempty"`
	Currency     string          `db:"currency" json:"currency"`
	Status       Status          `db:"status" json:"status"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxTotal     decimal.Decimal `db:"tax_total" json:"taxTotal"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Notes        string          `db:"notes" json:"notes,omitempty"`
	CreatedBy    string          `db:"created_by" json:"createdBy"`
	UpdatedBy    string          `db:"updated_by" json:"updatedBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
	DeletedAt    *time.Time      `db:"deleted_at" json:"-"`
	Version      int             `db:"version" json:"version"`

	// Table part
	Lines []Line `db:"-" json:"lines"`
}

// Line is one invoice position.
type Line struct {
	LineID      id.ID           `db:"line_id" json:"lineId"`
	LineNo      int             `db:"line_no" json:"lineNo"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"taxRate"` // percent
	TaxAmount   decimal.Decimal `db:"tax_amount" json:"taxAmount"`
	Amount      decimal.Decimal `db:"amount" json:"amount"` // with tax
}

// New creates a draft invoice in the given tenant.
func New(tenantID, counterparty, currency string) *Invoice {
	now := time.Now()
	return &Invoice{
		ID:           id.New(),
		TenantID:     tenantID,
		Counterparty: counterparty,
		IssueDate:    now,
		Currency:     currency,
		Status:       StatusDraft,
		Subtotal:     decimal.Zero,
		TaxTotal:     decimal.Zero,
		Total:        decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
		Lines:        make([]Line, 0),
	}
}

// AddLine appends a position and recalculates totals. Tax amounts round
// half-up to two places per line, matching how the totals are later
// reported.
func (inv *Invoice) AddLine(description string, quantity, unitPrice, taxRate decimal.Decimal) {
	base := quantity.Mul(unitPrice)
	tax := base.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)

	inv.Lines = append(inv.Lines, Line{
		LineID:      id.New(),
		LineNo:      len(inv.Lines) + 1,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TaxRate:     taxRate,
		TaxAmount:   tax,
		Amount:      base.Add(tax),
	})
	inv.recalculateTotals()
}

func (inv *Invoice) recalculateTotals() {
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice))
		taxTotal = taxTotal.Add(line.TaxAmount)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.TaxTotal = taxTotal
	inv.Total = inv.Subtotal.Add(inv.TaxTotal)
}

// Validate implements domain validation.
func (inv *Invoice) Validate(ctx context.Context) error {
	if inv.TenantID == "" {
		return apperror.NewValidation("tenant is required").WithDetail("field", "tenantId")
	}
	if inv.Counterparty == "" {
		return apperror.NewValidation("counterparty is required").WithDetail("field", "counterparty")
	}
	if len(inv.Currency) != 3 {
		return apperror.NewValidation("currency must be an ISO 4217 code").WithDetail("field", "currency")
	}
	if len(inv.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for i, line := range inv.Lines {
		if line.Quantity.Sign() <= 0 {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("line", i+1)
		}
		if line.UnitPrice.Sign() < 0 {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("line", i+1)
		}
		if line.TaxRate.Sign() < 0 {
			return apperror.NewValidation("tax rate cannot be negative").
				WithDetail("line", i+1)
		}
	}
	return nil
}

// Editable reports whether the invoice can still be changed.
func (inv *Invoice) Editable() bool {
	return inv.Status == StatusDraft
}

// transition validates a status move.
func (inv *Invoice) transition(to Status) error {
	valid := map[Status][]Status{
		StatusDraft:    {StatusApproved, StatusVoid},
		StatusApproved: {StatusExported, StatusVoid},
		StatusExported: {},
		StatusVoid:     {},
	}
	for _, allowed := range valid[inv.Status] {
		if allowed == to {
			inv.Status = to
			return nil
		}
	}
	return apperror.NewConflict("invalid status transition").
		WithDetail("from", string(inv.Status)).
		WithDetail("to", string(to))
}
