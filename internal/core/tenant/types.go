// Package tenant provides the tenant registry, snapshot cache, and request
// tenant resolution. A tenant is the unit of data separation; every scoped
// table carries its id and the row-level security policies key off it.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OnboardingStatus tracks tenant setup progress. Transitions are forward
// only; demotion is forbidden.
type OnboardingStatus string

const (
	OnboardingNotStarted OnboardingStatus = "not_started"
	OnboardingInProgress OnboardingStatus = "in_progress"
	OnboardingCompleted  OnboardingStatus = "completed"
)

// rank orders statuses for the forward-only check.
func (s OnboardingStatus) rank() int {
	switch s {
	case OnboardingNotStarted:
		return 0
	case OnboardingInProgress:
		return 1
	case OnboardingCompleted:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next is a legal transition.
func (s OnboardingStatus) CanAdvanceTo(next OnboardingStatus) bool {
	return next.rank() > s.rank()
}

// Plan represents tenant subscription plan.
type Plan string

const (
	PlanStandard   Plan = "standard"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is a registry record. Tenants are deactivated, never hard-deleted,
// while audit records reference them.
type Tenant struct {
	ID               string           `db:"id"`
	Slug             string           `db:"slug"`
	DisplayName      string           `db:"display_name"`
	Plan             Plan             `db:"plan"`
	Active           bool             `db:"active"`
	OnboardingStatus OnboardingStatus `db:"onboarding_status"`
	FeatureFlags     map[string]bool  `db:"feature_flags"`
	UserQuota        int              `db:"user_quota"`
	StorageQuotaMB   int              `db:"storage_quota_mb"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Active
}

// Onboarded returns true when setup is finished.
func (t *Tenant) Onboarded() bool {
	return t.OnboardingStatus == OnboardingCompleted
}

// Domain maps an external hostname to a tenant. At most one primary domain
// per tenant; hostname is unique platform-wide.
type Domain struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Hostname  string    `db:"hostname"`
	IsPrimary bool      `db:"is_primary"`
	CreatedAt time.Time `db:"created_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidIdentifier reports whether raw is a well-formed tenant identifier:
// either a UUID or a URL-safe slug.
func ValidIdentifier(raw string) bool {
	if raw == "" {
		return false
	}
	if _, err := uuid.Parse(raw); err == nil {
		return true
	}
	return slugPattern.MatchString(raw)
}

// CreateInput contains data for registering a new tenant.
type CreateInput struct {
	Slug        string
	DisplayName string
	Plan        Plan
}

// Validate checks if input is valid and normalizes the slug.
func (i *CreateInput) Validate() error {
	i.Slug = strings.ToLower(strings.TrimSpace(i.Slug))
	if i.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if !slugPattern.MatchString(i.Slug) {
		return fmt.Errorf("slug must be URL-safe and at most 63 characters")
	}
	if i.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	if i.Plan == "" {
		i.Plan = PlanStandard
	}
	return nil
}

// NewFromInput builds a tenant record from validated input, applying the
// plan's default quotas. The ID is assigned by the registry on create.
func NewFromInput(i CreateInput) *Tenant {
	userQuota, storageMB := 25, 10_240
	switch i.Plan {
	case PlanPremium:
		userQuota, storageMB = 100, 51_200
	case PlanEnterprise:
		userQuota, storageMB = 1000, 512_000
	}

	now := time.Now().UTC()
	return &Tenant{
		Slug:             i.Slug,
		DisplayName:      i.DisplayName,
		Plan:             i.Plan,
		Active:           true,
		OnboardingStatus: OnboardingNotStarted,
		UserQuota:        userQuota,
		StorageQuotaMB:   storageMB,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
