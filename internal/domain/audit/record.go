// Package audit implements the append-only, hash-chained audit log.
// Every record links to its predecessor within the tenant, so removing or
// editing history breaks the chain at the point of tampering.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
)

// Action classifies the audited operation.
type Action string

const (
	ActionCreate    Action = "CREATE"
	ActionRead      Action = "READ"
	ActionUpdate    Action = "UPDATE"
	ActionDelete    Action = "DELETE"
	ActionLogin     Action = "LOGIN"
	ActionLogout    Action = "LOGOUT"
	ActionExport    Action = "EXPORT"
	ActionViolation Action = "VIOLATION"
)

// Critical reports whether the action must land in the same transaction as
// the operation it describes. Mutations and logins are compliance-critical:
// a failed critical write fails the operation. Only reads and logouts may
// be spooled and written behind the response.
func (a Action) Critical() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionExport, ActionViolation:
		return true
	}
	return false
}

// Record is one audit log entry. Seq, PrevHash and Hash are assigned at
// append time under the tenant's chain lock; callers fill the rest.
type Record struct {
	ID         id.ID          `db:"id" json:"id"`
	TenantID   string         `db:"tenant_id" json:"tenantId"`
	Seq        int64          `db:"seq" json:"seq"`
	Action     Action         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entityType,omitempty"`
	EntityID   string         `db:"entity_id" json:"entityId,omitempty"`
	ActorID    string         `db:"actor_id" json:"actorId,omitempty"`
	ActorEmail string         `db:"actor_email" json:"actorEmail,omitempty"`
	Success    bool           `db:"success" json:"success"`
	Details    map[string]any `db:"details" json:"details,omitempty"`
	ClientIP   string         `db:"client_ip" json:"clientIp,omitempty"`
	UserAgent  string         `db:"user_agent" json:"userAgent,omitempty"`
	RequestID  string         `db:"request_id" json:"requestId,omitempty"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurredAt"`
	PrevHash   string         `db:"prev_hash" json:"prevHash"`
	Hash       string         `db:"hash" json:"hash"`
}

// New builds a record from the request context. Actor, network and request
// attribution come from reqctx so call sites only name the event.
func New(rc *reqctx.Context, requestID string, action Action, entityType, entityID string, success bool, details map[string]any) *Record {
	rec := &Record{
		ID:         id.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Success:    success,
		Details:    details,
		RequestID:  requestID,
		OccurredAt: time.Now().UTC(),
	}
	if rc != nil {
		rec.TenantID = rc.TenantID
		rec.ActorID = rc.UserID
		rec.ActorEmail = rc.Email
		rec.ClientIP = rc.ClientIP
		rec.UserAgent = rc.UserAgent
		if rec.RequestID == "" {
			rec.RequestID = rc.RequestID
		}
	}
	return rec
}

// canonical is the hashed projection of a record. Marshaling a struct
// yields a fixed field order, and encoding/json sorts the Details map keys,
// so equal records always produce identical bytes.
type canonical struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Seq        int64          `json:"seq"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	ActorEmail string         `json:"actor_email"`
	Success    bool           `json:"success"`
	Details    map[string]any `json:"details"`
	ClientIP   string         `json:"client_ip"`
	UserAgent  string         `json:"user_agent"`
	RequestID  string         `json:"request_id"`
	OccurredAt string         `json:"occurred_at"`
}

// CanonicalBytes returns the deterministic byte form of the record used as
// hash input. Timestamps are rendered in RFC 3339 UTC with nanoseconds.
func (r *Record) CanonicalBytes() ([]byte, error) {
	return json.Marshal(canonical{
		ID:         r.ID.String(),
		TenantID:   r.TenantID,
		Seq:        r.Seq,
		Action:     r.Action,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		ActorID:    r.ActorID,
		ActorEmail: r.ActorEmail,
		Success:    r.Success,
		Details:    r.Details,
		ClientIP:   r.ClientIP,
		UserAgent:  r.UserAgent,
		RequestID:  r.RequestID,
		OccurredAt: r.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

// ComputeHash links the record to prevHash and returns the chain hash:
// SHA-256 over the previous hash concatenated with the canonical bytes.
func (r *Record) ComputeHash(prevHash string) (string, error) {
	payload, err := r.CanonicalBytes()
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal assigns seq and chain hashes. The caller holds whatever lock makes
// prevHash current for the tenant.
func (r *Record) Seal(seq int64, prevHash string) error {
	r.Seq = seq
	r.PrevHash = prevHash
	hash, err := r.ComputeHash(prevHash)
	if err != nil {
		return err
	}
	r.Hash = hash
	return nil
}

// GenesisHash anchors the first record of each tenant chain.
const GenesisHash = ""

// VerifyChain recomputes hashes over records ordered by seq and returns the
// seq of the first broken link, or 0 when the chain is intact. A range that
// starts mid-chain (after retention purges) anchors on the first record's
// PrevHash.
func VerifyChain(records []*Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	prev := records[0].PrevHash
	for i, rec := range records {
		if i > 0 && rec.Seq != records[i-1].Seq+1 {
			return rec.Seq, fmt.Errorf("gap in chain before seq %d", rec.Seq)
		}
		if rec.PrevHash != prev {
			return rec.Seq, fmt.Errorf("broken link at seq %d", rec.Seq)
		}
		computed, err := rec.ComputeHash(prev)
		if err != nil {
			return rec.Seq, err
		}
		if computed != rec.Hash {
			return rec.Seq, fmt.Errorf("hash mismatch at seq %d", rec.Seq)
		}
		prev = rec.Hash
	}
	return 0, nil
}
