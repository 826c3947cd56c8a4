package audit

import (
	"context"
	"time"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
	"ledgercore/pkg/logger"
)

// Service is the audit log facade. Critical actions (mutations, logins,
// exports, violations) append synchronously and fail the caller when the
// store is unavailable; everything else goes through the spool.
type Service struct {
	repo  Repository
	spool *Spool
}

// NewService creates the audit service.
func NewService(repo Repository, spool *Spool) *Service {
	return &Service{repo: repo, spool: spool}
}

// Record writes one audit event with attribution from the request context.
func (s *Service) Record(ctx context.Context, action Action, entityType, entityID string, success bool, details map[string]any) error {
	rec := New(reqctx.From(ctx), reqctx.RequestID(ctx), action, entityType, entityID, success, details)

	if action.Critical() {
		if err := s.repo.Append(ctx, rec); err != nil {
			return apperror.NewAuditUnavailable(err)
		}
		return nil
	}

	s.spool.Enqueue(rec)
	return nil
}

// Auth records an authentication event. Satisfies the auth service's
// Auditor dependency. The error matters for critical actions: a login must
// not proceed when its audit record cannot be appended.
func (s *Service) Auth(ctx context.Context, action string, success bool, details map[string]any) error {
	if err := s.Record(ctx, Action(action), "user", "", success, details); err != nil {
		logger.Error(ctx, "auth audit failed", "action", action, "error", err)
		return err
	}
	return nil
}

// Violation records a refused security-relevant attempt: cross-tenant
// access, revoked token replay, guard denials. Violations are critical.
func (s *Service) Violation(ctx context.Context, kind string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["violation"] = kind
	return s.Record(ctx, ActionViolation, "", "", false, details)
}

// List retrieves audit records for review.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Record, int, error) {
	return s.repo.List(ctx, filter)
}

// Verify recomputes a tenant's chain over [fromSeq, toSeq] and returns the
// seq of the first broken link, 0 when intact.
func (s *Service) Verify(ctx context.Context, tenantID string, fromSeq, toSeq int64) (int64, error) {
	records, err := s.repo.ChainRange(ctx, tenantID, fromSeq, toSeq)
	if err != nil {
		return 0, err
	}
	return VerifyChain(records)
}

// PurgeExpired trims records older than the retention window.
func (s *Service) PurgeExpired(ctx context.Context, tenantID string, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	n, err := s.repo.PurgeBefore(ctx, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info(ctx, "audit records purged", "tenant_id", tenantID, "count", n)
	}
	return n, nil
}

// Close flushes and stops the spool.
func (s *Service) Close() {
	s.spool.Close()
}
