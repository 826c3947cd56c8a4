package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgercore/internal/domain/audit"
	"ledgercore/internal/infrastructure/http/v1/dto"
)

// AuditHandler exposes the audit log to auditors.
type AuditHandler struct {
	BaseHandler
	service *audit.Service
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(service *audit.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// List queries the current tenant's audit log, newest first.
// GET /api/v1/audit
func (h *AuditHandler) List(c *gin.Context) {
	var req dto.AuditListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	records, total, err := h.service.List(c.Request.Context(), req.ToFilter(h.TenantID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, dto.FromAuditRecord(rec))
	}
	h.OK(c, dto.NewListResponse(items, total, req.Limit, req.Offset))
}

// Verify recomputes the tenant's hash chain over the requested range and
// reports the first broken link, if any.
// GET /api/v1/audit/verify
func (h *AuditHandler) Verify(c *gin.Context) {
	var req dto.AuditVerifyRequest
	if !h.BindQuery(c, &req) {
		return
	}
	if req.FromSeq == 0 {
		req.FromSeq = 1
	}

	brokenSeq, err := h.service.Verify(c.Request.Context(), h.TenantID(c), req.FromSeq, req.ToSeq)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AuditVerifyResponse{
		Intact:    brokenSeq == 0,
		BrokenSeq: brokenSeq,
	})
}
