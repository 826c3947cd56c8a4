package invoice

import (
	"context"
	"fmt"
	"time"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/core/tx"
	"ledgercore/internal/domain/audit"
	"ledgercore/pkg/logger"
)

// Recorder is the audit dependency. Mutations and exports run through the
// critical path, so their audit write shares the operation's transaction.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, entityType, entityID string, success bool, details map[string]any) error
}

// Service provides invoice business operations.
type Service struct {
	repo      Repository
	txManager tx.Manager
	auditor   Recorder
}

// NewService creates the invoice service.
func NewService(repo Repository, txManager tx.Manager, auditor Recorder) *Service {
	return &Service{repo: repo, txManager: txManager, auditor: auditor}
}

// Create creates a draft invoice, numbering it within the tenant and year.
func (s *Service) Create(ctx context.Context, inv *Invoice) error {
	rc := reqctx.From(ctx)
	if rc == nil || rc.TenantID == "" {
		return apperror.NewTenantRequired()
	}
	if inv.TenantID == "" {
		inv.TenantID = rc.TenantID
	}
	inv.CreatedBy = rc.UserID
	inv.UpdatedBy = rc.UserID

	if err := inv.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if inv.Number == "" {
			number, err := s.repo.NextNumber(ctx, inv.IssueDate.Year())
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			inv.Number = number
		}
		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return s.auditor.Record(ctx, audit.ActionCreate, "invoice", inv.ID.String(), true,
			map[string]any{"number": inv.Number, "total": inv.Total.String()})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "invoice created", "invoice_id", inv.ID, "number", inv.Number)
	return nil
}

// Get retrieves one invoice.
func (s *Service) Get(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	_ = s.auditor.Record(ctx, audit.ActionRead, "invoice", invoiceID.String(), true, nil)
	return inv, nil
}

// List retrieves invoices matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

// Update modifies a draft invoice.
func (s *Service) Update(ctx context.Context, inv *Invoice) error {
	current, err := s.repo.GetByID(ctx, inv.ID)
	if err != nil {
		return err
	}
	if !current.Editable() {
		return apperror.NewConflict("only draft invoices can be edited").
			WithDetail("status", string(current.Status))
	}
	if inv.Version != current.Version {
		return apperror.NewConcurrentModification("invoice", inv.ID.String())
	}

	inv.TenantID = current.TenantID
	inv.Number = current.Number
	inv.CreatedBy = current.CreatedBy
	inv.UpdatedBy = reqctx.UserID(ctx)
	inv.UpdatedAt = time.Now()
	inv.recalculateTotals()

	if err := inv.Validate(ctx); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionUpdate, "invoice", inv.ID.String(), true,
			map[string]any{"total": inv.Total.String()})
	})
}

// Approve moves a draft invoice to approved.
func (s *Service) Approve(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.changeStatus(ctx, invoiceID, StatusApproved, audit.ActionUpdate)
}

// Void cancels a draft or approved invoice.
func (s *Service) Void(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.changeStatus(ctx, invoiceID, StatusVoid, audit.ActionUpdate)
}

// Export marks an approved invoice exported and returns it. The EXPORT
// audit record is critical: when the audit store is down the export is
// refused.
func (s *Service) Export(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.transition(StatusExported); err != nil {
			return err
		}
		inv.UpdatedBy = reqctx.UserID(ctx)
		inv.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionExport, "invoice", invoiceID.String(), true,
			map[string]any{"number": inv.Number})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "invoice exported", "invoice_id", invoiceID)
	return inv, nil
}

// Delete soft-deletes a draft invoice. The DELETE audit record shares the
// transaction.
func (s *Service) Delete(ctx context.Context, invoiceID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Editable() {
			return apperror.NewConflict("only draft invoices can be deleted").
				WithDetail("status", string(inv.Status))
		}
		if err := s.repo.Delete(ctx, invoiceID); err != nil {
			return err
		}
		return s.auditor.Record(ctx, audit.ActionDelete, "invoice", invoiceID.String(), true,
			map[string]any{"number": inv.Number})
	})
}

func (s *Service) changeStatus(ctx context.Context, invoiceID id.ID, to Status, action audit.Action) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.transition(to); err != nil {
			return err
		}
		inv.UpdatedBy = reqctx.UserID(ctx)
		inv.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}
		return s.auditor.Record(ctx, action, "invoice", invoiceID.String(), true,
			map[string]any{"status": string(to)})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "invoice status changed", "invoice_id", invoiceID, "status", to)
	return inv, nil
}
