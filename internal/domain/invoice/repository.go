package invoice

import (
	"context"
	"time"

	"ledgercore/internal/core/id"
)

// Repository stores invoices. Implementations sit behind the tenant guard:
// every statement carries the tenant predicate and creates stamp the
// resolved tenant.
type Repository interface {
	// Create inserts the invoice with its lines.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID retrieves an invoice with lines within the current tenant.
	GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// Update writes the invoice with optimistic version check.
	Update(ctx context.Context, inv *Invoice) error

	// Delete soft-deletes a draft invoice.
	Delete(ctx context.Context, invoiceID id.ID) error

	// List retrieves invoices matching the filter.
	List(ctx context.Context, filter Filter) ([]Invoice, int, error)

	// NextNumber produces the next sequential invoice number for the
	// current tenant and year.
	NextNumber(ctx context.Context, year int) (string, error)
}

// Filter narrows invoice listings.
type Filter struct {
	Status       Status
	Counterparty string
	IssuedSince  time.Time
	IssuedUntil  time.Time
	Search       string
	Limit        int
	Offset       int
}
