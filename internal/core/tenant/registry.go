package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry provides access to tenant metadata in the canonical store.
type Registry interface {
	// GetByID retrieves tenant by UUID string.
	GetByID(ctx context.Context, tenantID string) (*Tenant, error)

	// GetBySlug retrieves tenant by slug.
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)

	// GetByHostname resolves a custom domain to its tenant.
	GetByHostname(ctx context.Context, hostname string) (*Tenant, error)

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*Tenant, error)

	// Create inserts a new tenant row and populates t.ID.
	Create(ctx context.Context, t *Tenant) error

	// SetActive toggles the active flag.
	SetActive(ctx context.Context, tenantID string, active bool) error

	// AdvanceOnboarding moves onboarding status forward. Backwards
	// transitions return ErrBadTransition.
	AdvanceOnboarding(ctx context.Context, tenantID string, next OnboardingStatus) error

	// AddDomain attaches a hostname to a tenant.
	AddDomain(ctx context.Context, d *Domain) error
}

const tenantColumns = `id, slug, display_name, plan, active, onboarding_status,
       feature_flags, user_quota, storage_quota_mb, created_at, updated_at`

// PostgresRegistry implements Registry over the platform database.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.pool, &t, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, tenantID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.pool, &t, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE slug = $1
	`, slug)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) GetByHostname(ctx context.Context, hostname string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.pool, &t, `
		SELECT t.id, t.slug, t.display_name, t.plan, t.active, t.onboarding_status,
		       t.feature_flags, t.user_quota, t.storage_quota_mb, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_domains d ON d.tenant_id = t.id
		WHERE d.hostname = $1
	`, hostname)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by hostname: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	err := pgxscan.Select(ctx, r.pool, &tenants, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE active
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

func (r *PostgresRegistry) Create(ctx context.Context, t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is nil")
	}
	if t.Plan == "" {
		t.Plan = PlanStandard
	}
	if t.OnboardingStatus == "" {
		t.OnboardingStatus = OnboardingNotStarted
	}
	if t.FeatureFlags == nil {
		t.FeatureFlags = map[string]bool{}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (slug, display_name, plan, active, onboarding_status,
		                     feature_flags, user_quota, storage_quota_mb)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.Slug, t.DisplayName, t.Plan, t.Active, t.OnboardingStatus,
		t.FeatureFlags, t.UserQuota, t.StorageQuotaMB).Scan(&t.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("tenant slug %q already taken: %w", t.Slug, err)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) SetActive(ctx context.Context, tenantID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET active = $2, updated_at = now()
		WHERE id = $1
	`, tenantID, active)
	if err != nil {
		return fmt.Errorf("set tenant active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (r *PostgresRegistry) AdvanceOnboarding(ctx context.Context, tenantID string, next OnboardingStatus) error {
	current, err := r.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if !current.OnboardingStatus.CanAdvanceTo(next) {
		return ErrBadTransition
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET onboarding_status = $2, updated_at = now()
		WHERE id = $1
	`, tenantID, next)
	if err != nil {
		return fmt.Errorf("advance onboarding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (r *PostgresRegistry) AddDomain(ctx context.Context, d *Domain) error {
	if d.IsPrimary {
		// A new primary demotes any existing one; one primary per tenant.
		if _, err := r.pool.Exec(ctx, `
			UPDATE tenant_domains SET is_primary = false WHERE tenant_id = $1
		`, d.TenantID); err != nil {
			return fmt.Errorf("demote primary domain: %w", err)
		}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_domains (tenant_id, hostname, is_primary)
		VALUES ($1, $2, $3)
		RETURNING id
	`, d.TenantID, d.Hostname, d.IsPrimary).Scan(&d.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("hostname %q already mapped: %w", d.Hostname, err)
		}
		return fmt.Errorf("add domain: %w", err)
	}
	return nil
}
