package auth_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/infrastructure/storage/postgres"
	"ledgercore/internal/infrastructure/storage/postgres/guard"
)

// ActionTokenRepo implements auth.ActionTokenRepository. Action tokens are
// append-then-consume rows without versioning, so the statements are
// hand-written with the guard's tenant predicate.
type ActionTokenRepo struct {
	txm     *postgres.TxManager
	auditor guard.Recorder
}

// NewActionTokenRepo creates an action token repository.
func NewActionTokenRepo(txm *postgres.TxManager, auditor guard.Recorder) *ActionTokenRepo {
	return &ActionTokenRepo{txm: txm, auditor: auditor}
}

// Save persists a new action token, stamping the current tenant.
func (r *ActionTokenRepo) Save(ctx context.Context, token *auth.ActionToken) error {
	tenantID, scoped, err := guard.TenantScope(ctx, r.auditor, "action_tokens.Save")
	if err != nil {
		return err
	}
	if scoped {
		token.TenantID = tenantID
	}

	query := `
		INSERT INTO action_tokens (id, user_id, tenant_id, token_hash, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.txm.GetQuerier(ctx).Exec(ctx, query,
		token.ID, token.UserID, token.TenantID, token.TokenHash,
		token.Purpose, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action token: %w", err)
	}
	return nil
}

// GetByHash retrieves a token by its hash and purpose within the current
// tenant.
func (r *ActionTokenRepo) GetByHash(ctx context.Context, tokenHash string, purpose auth.ActionTokenPurpose) (*auth.ActionToken, error) {
	tenantID, scoped, err := guard.TenantScope(ctx, r.auditor, "action_tokens.GetByHash")
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, tenant_id, token_hash, purpose, expires_at, used_at, created_at
		FROM action_tokens
		WHERE token_hash = $1 AND purpose = $2
	`
	args := []any{tokenHash, purpose}
	if scoped {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	var token auth.ActionToken
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &token, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("action_token", tokenHash)
		}
		return nil, fmt.Errorf("query action token: %w", err)
	}
	return &token, nil
}

// MarkUsed consumes a token. Consuming an already-used token fails, so a
// token is spent at most once even under concurrent confirmation attempts.
func (r *ActionTokenRepo) MarkUsed(ctx context.Context, tokenID id.ID) error {
	tenantID, scoped, err := guard.TenantScope(ctx, r.auditor, "action_tokens.MarkUsed")
	if err != nil {
		return err
	}

	query := `UPDATE action_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	args := []any{time.Now().UTC(), tokenID}
	if scoped {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark action token used: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("action_token", tokenID.String())
	}
	return nil
}

// InvalidateForUser voids outstanding tokens of one purpose for a user.
func (r *ActionTokenRepo) InvalidateForUser(ctx context.Context, userID id.ID, purpose auth.ActionTokenPurpose) error {
	tenantID, scoped, err := guard.TenantScope(ctx, r.auditor, "action_tokens.InvalidateForUser")
	if err != nil {
		return err
	}

	query := `UPDATE action_tokens SET used_at = $1 WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL`
	args := []any{time.Now().UTC(), userID, purpose}
	if scoped {
		query += " AND tenant_id = $4"
		args = append(args, tenantID)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("invalidate action tokens: %w", err)
	}
	return nil
}

// CleanupExpired removes expired tokens. Runs from maintenance under an
// unchecked session, sweeping all tenants at once.
func (r *ActionTokenRepo) CleanupExpired(ctx context.Context) (int, error) {
	tenantID, scoped, err := guard.TenantScope(ctx, r.auditor, "action_tokens.CleanupExpired")
	if err != nil {
		return 0, err
	}

	query := `DELETE FROM action_tokens WHERE expires_at < $1`
	args := []any{time.Now().UTC()}
	if scoped {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup action tokens: %w", err)
	}
	return int(result.RowsAffected()), nil
}

var _ auth.ActionTokenRepository = (*ActionTokenRepo)(nil)
