package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreateInvoiceRequestCarriesClaimedTenant(t *testing.T) {
	req := CreateInvoiceRequest{
		Tenant:       "0190f3d2-1111-7abc-8def-000000000001",
		Counterparty: "Acme Corp",
		IssueDate:    time.Now(),
		Currency:     "USD",
		Lines: []InvoiceLineRequest{
			{Description: "Services", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
		},
	}

	// A tenant claimed in the body must reach the domain model untouched,
	// so the guard can compare it against the authenticated tenant.
	inv := req.ToInvoice()
	assert.Equal(t, req.Tenant, inv.TenantID)

	resp := FromInvoice(inv)
	assert.Equal(t, req.Tenant, resp.Tenant)
}

func TestCreateInvoiceRequestDefaultsToResolvedTenant(t *testing.T) {
	req := CreateInvoiceRequest{
		Counterparty: "Acme Corp",
		IssueDate:    time.Now(),
		Currency:     "USD",
		Lines: []InvoiceLineRequest{
			{Description: "Services", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
		},
	}

	// No tenant in the body leaves the field empty; the invoice service
	// stamps the one resolved from the request context.
	assert.Empty(t, req.ToInvoice().TenantID)
}
