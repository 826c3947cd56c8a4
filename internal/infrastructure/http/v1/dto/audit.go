package dto

import (
	"time"

	"ledgercore/internal/domain/audit"
)

// AuditListRequest filters the audit log.
type AuditListRequest struct {
	PaginationRequest
	ActorID    string    `form:"actorId"`
	Action     string    `form:"action"`
	EntityType string    `form:"entityType"`
	EntityID   string    `form:"entityId"`
	Since      time.Time `form:"since" time_format:"2006-01-02"`
	Until      time.Time `form:"until" time_format:"2006-01-02"`
}

// ToFilter converts to a domain filter. The tenant is taken from the
// request context, never from the query.
func (r *AuditListRequest) ToFilter(tenantID string) audit.Filter {
	r.Defaults()
	return audit.Filter{
		TenantID:   tenantID,
		ActorID:    r.ActorID,
		Action:     audit.Action(r.Action),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Since:      r.Since,
		Until:      r.Until,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// AuditVerifyRequest asks for chain verification over a seq range.
type AuditVerifyRequest struct {
	FromSeq int64 `form:"fromSeq" binding:"omitempty,min=1"`
	ToSeq   int64 `form:"toSeq"`
}

// AuditRecordResponse represents one audit record.
type AuditRecordResponse struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType,omitempty"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Success    bool           `json:"success"`
	Details    map[string]any `json:"details,omitempty"`
	ClientIP   string         `json:"clientIp,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	PrevHash   string         `json:"prevHash"`
	Hash       string         `json:"hash"`
}

// FromAuditRecord creates a response from a domain record.
func FromAuditRecord(rec *audit.Record) AuditRecordResponse {
	return AuditRecordResponse{
		ID:         rec.ID.String(),
		Seq:        rec.Seq,
		Action:     string(rec.Action),
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		ActorID:    rec.ActorID,
		ActorEmail: rec.ActorEmail,
		Success:    rec.Success,
		Details:    rec.Details,
		ClientIP:   rec.ClientIP,
		RequestID:  rec.RequestID,
		OccurredAt: rec.OccurredAt,
		PrevHash:   rec.PrevHash,
		Hash:       rec.Hash,
	}
}

// AuditVerifyResponse reports chain verification outcome.
type AuditVerifyResponse struct {
	Intact    bool  `json:"intact"`
	BrokenSeq int64 `json:"brokenSeq,omitempty"`
}
