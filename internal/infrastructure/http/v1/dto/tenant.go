package dto

import (
	"time"

	"ledgercore/internal/core/tenant"
)

// --- Request DTOs ---

// CreateTenantRequest registers a new tenant (platform admin only).
type CreateTenantRequest struct {
	Slug        string `json:"slug" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Plan        string `json:"plan"`
}

// ToCreateInput converts to domain input.
func (r *CreateTenantRequest) ToCreateInput() tenant.CreateInput {
	plan := tenant.Plan(r.Plan)
	if plan == "" {
		plan = tenant.PlanStandard
	}
	return tenant.CreateInput{
		Slug:        r.Slug,
		DisplayName: r.DisplayName,
		Plan:        plan,
	}
}

// SetTenantActiveRequest toggles a tenant's active flag.
type SetTenantActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AdvanceOnboardingRequest moves onboarding forward.
type AdvanceOnboardingRequest struct {
	Status string `json:"status" binding:"required"`
}

// AddDomainRequest attaches a hostname to a tenant.
type AddDomainRequest struct {
	Hostname  string `json:"hostname" binding:"required,hostname"`
	IsPrimary bool   `json:"isPrimary"`
}

// --- Response DTOs ---

// TenantDetailResponse is the full tenant view for admin and self-service
// endpoints.
type TenantDetailResponse struct {
	ID               string    `json:"id"`
	Slug             string    `json:"slug"`
	DisplayName      string    `json:"displayName"`
	Plan             string    `json:"plan"`
	Active           bool      `json:"active"`
	OnboardingStatus string    `json:"onboardingStatus"`
	UserQuota        int       `json:"userQuota"`
	StorageQuotaMB   int       `json:"storageQuotaMb"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FromTenantDetail creates a detail response from a registry tenant.
func FromTenantDetail(t *tenant.Tenant) *TenantDetailResponse {
	return &TenantDetailResponse{
		ID:               t.ID,
		Slug:             t.Slug,
		DisplayName:      t.DisplayName,
		Plan:             string(t.Plan),
		Active:           t.Active,
		OnboardingStatus: string(t.OnboardingStatus),
		UserQuota:        t.UserQuota,
		StorageQuotaMB:   t.StorageQuotaMB,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// OnboardingStatusResponse reports onboarding progress.
type OnboardingStatusResponse struct {
	Status    string `json:"status"`
	Onboarded bool   `json:"onboarded"`
}
