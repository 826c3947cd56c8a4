package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgercore/internal/domain/invoice"
	"ledgercore/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler handles invoice endpoints.
type InvoiceHandler struct {
	BaseHandler
	service *invoice.Service
}

// NewInvoiceHandler creates an invoice handler.
func NewInvoiceHandler(service *invoice.Service) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// Create creates a draft invoice. The number is assigned from the
// tenant's sequence; totals are computed server-side.
// POST /api/v1/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv := req.ToInvoice()
	if err := h.service.Create(c.Request.Context(), inv); err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedData(c, dto.FromInvoice(inv))
}

// Get returns one invoice with lines.
// GET /api/v1/invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Get(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// List returns invoice headers with filtering and pagination.
// GET /api/v1/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var req dto.InvoiceListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	invoices, total, err := h.service.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]*dto.InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, dto.FromInvoice(&invoices[i]))
	}
	h.OK(c, dto.NewListResponse(items, total, req.Limit, req.Offset))
}

// Update replaces a draft invoice's content. The version in the body must
// match the stored version.
// PUT /api/v1/invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv := req.Apply(invoiceID)
	if err := h.service.Update(c.Request.Context(), inv); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Approve moves a draft invoice to approved.
// POST /api/v1/invoices/:id/approve
func (h *InvoiceHandler) Approve(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Approve(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Void cancels an invoice.
// POST /api/v1/invoices/:id/void
func (h *InvoiceHandler) Void(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Void(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Export marks an approved invoice exported. The compliance audit record
// commits in the same transaction; an audit outage fails the export.
// POST /api/v1/invoices/:id/export
func (h *InvoiceHandler) Export(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Export(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Delete removes a draft invoice.
// DELETE /api/v1/invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	invoiceID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
