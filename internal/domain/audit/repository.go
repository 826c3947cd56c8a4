package audit

import (
	"context"
	"time"
)

// Repository stores the audit chain. Append serializes per tenant: the
// implementation locks the tenant's chain head, seals the record against it
// and inserts, so two concurrent appends can never share a predecessor.
type Repository interface {
	// Append seals and persists a record at the tenant's chain head.
	Append(ctx context.Context, rec *Record) error

	// List retrieves records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Record, int, error)

	// ChainRange returns records of one tenant ordered by seq ascending,
	// inclusive on both ends. toSeq <= 0 means up to the head.
	ChainRange(ctx context.Context, tenantID string, fromSeq, toSeq int64) ([]*Record, error)

	// Head returns the newest record of a tenant's chain, or nil when the
	// chain is empty.
	Head(ctx context.Context, tenantID string) (*Record, error)

	// PurgeBefore removes records older than cutoff, trimming the chain
	// from the oldest end only.
	PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error)
}

// Filter narrows audit queries.
type Filter struct {
	TenantID   string
	ActorID    string
	Action     Action
	EntityType string
	EntityID   string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}
