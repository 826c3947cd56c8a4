package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/invoice"
)

// --- Request DTOs ---

// InvoiceLineRequest is one line of a create or update request.
type InvoiceLineRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice" binding:"required"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

// CreateInvoiceRequest for creating invoices. Tenant is optional; when
// present it must match the authenticated tenant, and the guard layer
// refuses the write otherwise.
type CreateInvoiceRequest struct {
	Tenant       string               `json:"tenant"`
	Counterparty string               `json:"counterparty" binding:"required"`
	IssueDate    time.Time            `json:"issueDate" binding:"required"`
	DueDate      *time.Time           `json:"dueDate"`
	Currency     string               `json:"currency" binding:"required,len=3"`
	Notes        string               `json:"notes"`
	Lines        []InvoiceLineRequest `json:"lines" binding:"required,min=1"`
}

// ToInvoice converts to a domain invoice. Totals are computed by the
// domain model, never trusted from the client.
func (r *CreateInvoiceRequest) ToInvoice() *invoice.Invoice {
	inv := invoice.New(r.Tenant, r.Counterparty, r.Currency)
	inv.IssueDate = r.IssueDate
	inv.DueDate = r.DueDate
	inv.Notes = r.Notes
	for _, line := range r.Lines {
		inv.AddLine(line.Description, line.Quantity, line.UnitPrice, line.TaxRate)
	}
	return inv
}

// UpdateInvoiceRequest for updating draft invoices.
type UpdateInvoiceRequest struct {
	Counterparty string               `json:"counterparty" binding:"required"`
	IssueDate    time.Time            `json:"issueDate" binding:"required"`
	DueDate      *time.Time           `json:"dueDate"`
	Currency     string               `json:"currency" binding:"required,len=3"`
	Notes        string               `json:"notes"`
	Lines        []InvoiceLineRequest `json:"lines" binding:"required,min=1"`
	Version      int                  `json:"version" binding:"required,min=1"`
}

// Apply writes the request onto an invoice destined for update.
func (r *UpdateInvoiceRequest) Apply(invoiceID id.ID) *invoice.Invoice {
	inv := invoice.New("", r.Counterparty, r.Currency)
	inv.ID = invoiceID
	inv.IssueDate = r.IssueDate
	inv.DueDate = r.DueDate
	inv.Notes = r.Notes
	inv.Version = r.Version
	for _, line := range r.Lines {
		inv.AddLine(line.Description, line.Quantity, line.UnitPrice, line.TaxRate)
	}
	return inv
}

// InvoiceListRequest for listing invoices.
type InvoiceListRequest struct {
	PaginationRequest
	Status       string    `form:"status"`
	Counterparty string    `form:"counterparty"`
	IssuedSince  time.Time `form:"issuedSince" time_format:"2006-01-02"`
	IssuedUntil  time.Time `form:"issuedUntil" time_format:"2006-01-02"`
	Search       string    `form:"search"`
}

// ToFilter converts to a domain filter.
func (r *InvoiceListRequest) ToFilter() invoice.Filter {
	r.Defaults()
	return invoice.Filter{
		Status:       invoice.Status(r.Status),
		Counterparty: r.Counterparty,
		IssuedSince:  r.IssuedSince,
		IssuedUntil:  r.IssuedUntil,
		Search:       r.Search,
		Limit:        r.Limit,
		Offset:       r.Offset,
	}
}

// --- Response DTOs ---

// InvoiceLineResponse is one line of an invoice response.
type InvoiceLineResponse struct {
	LineNo      int             `json:"lineNo"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceResponse represents an invoice in API responses.
type InvoiceResponse struct {
	ID           string                `json:"id"`
	Tenant       string                `json:"tenant"`
	Number       string                `json:"number"`
	Counterparty string                `json:"counterparty"`
	IssueDate    time.Time             `json:"issueDate"`
	DueDate      *time.Time            `json:"dueDate,omitempty"`
	Currency     string                `json:"currency"`
	Status       string                `json:"status"`
	Subtotal     decimal.Decimal       `json:"subtotal"`
	TaxTotal     decimal.Decimal       `json:"taxTotal"`
	Total        decimal.Decimal       `json:"total"`
	Notes        string                `json:"notes,omitempty"`
	Lines        []InvoiceLineResponse `json:"lines,omitempty"`
	CreatedBy    string                `json:"createdBy"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	Version      int                   `json:"version"`
}

// FromInvoice creates a response from a domain invoice.
func FromInvoice(inv *invoice.Invoice) *InvoiceResponse {
	lines := make([]InvoiceLineResponse, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		lines = append(lines, InvoiceLineResponse{
			LineNo:      l.LineNo,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
			TaxAmount:   l.TaxAmount,
			Amount:      l.Amount,
		})
	}
	return &InvoiceResponse{
		ID:           inv.ID.String(),
		Tenant:       inv.TenantID,
		Number:       inv.Number,
		Counterparty: inv.Counterparty,
		IssueDate:    inv.IssueDate,
		DueDate:      inv.DueDate,
		Currency:     inv.Currency,
		Status:       string(inv.Status),
		Subtotal:     inv.Subtotal,
		TaxTotal:     inv.TaxTotal,
		Total:        inv.Total,
		Notes:        inv.Notes,
		Lines:        lines,
		CreatedBy:    inv.CreatedBy,
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
		Version:      inv.Version,
	}
}
