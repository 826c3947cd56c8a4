package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/infrastructure/http/v1/dto"
	"ledgercore/internal/infrastructure/http/v1/middleware"
)

// TenantHandler handles tenant self-service and platform administration.
type TenantHandler struct {
	BaseHandler
	registry tenant.Registry
}

// NewTenantHandler creates a tenant handler.
func NewTenantHandler(registry tenant.Registry) *TenantHandler {
	return &TenantHandler{registry: registry}
}

// Me returns the current tenant.
// GET /api/v1/tenants/me
func (h *TenantHandler) Me(c *gin.Context) {
	t := middleware.TenantFrom(c)
	if t == nil {
		h.Error(c, apperror.NewTenantRequired())
		return
	}
	h.OK(c, dto.FromTenantDetail(t))
}

// OnboardingStatus reports the current tenant's onboarding progress.
// GET /api/v1/tenants/onboarding/status
func (h *TenantHandler) OnboardingStatus(c *gin.Context) {
	t := middleware.TenantFrom(c)
	if t == nil {
		h.Error(c, apperror.NewTenantRequired())
		return
	}
	h.OK(c, dto.OnboardingStatusResponse{
		Status:    string(t.OnboardingStatus),
		Onboarded: t.Onboarded(),
	})
}

// AdvanceOnboarding moves the current tenant's onboarding forward.
// Backwards transitions are refused.
// POST /api/v1/tenants/onboarding/advance
func (h *TenantHandler) AdvanceOnboarding(c *gin.Context) {
	t := middleware.TenantFrom(c)
	if t == nil {
		h.Error(c, apperror.NewTenantRequired())
		return
	}

	var req dto.AdvanceOnboardingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	err := h.registry.AdvanceOnboarding(c.Request.Context(), t.ID, tenant.OnboardingStatus(req.Status))
	if err != nil {
		if errors.Is(err, tenant.ErrBadTransition) {
			h.Error(c, apperror.NewConflict("onboarding status cannot move backwards"))
			return
		}
		h.Error(c, err)
		return
	}
	h.Success(c, "onboarding advanced")
}

// --- Platform administration (platform_admin only) ---

// Create registers a new tenant.
// POST /api/v1/admin/tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var req dto.CreateTenantRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input := req.ToCreateInput()
	if err := input.Validate(); err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}

	t := tenant.NewFromInput(input)
	if err := h.registry.Create(c.Request.Context(), t); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTenantDetail(t))
}

// List returns all active tenants.
// GET /api/v1/admin/tenants
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.registry.ListActive(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]*dto.TenantDetailResponse, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, dto.FromTenantDetail(t))
	}
	h.OK(c, dto.NewListResponse(items, len(items), 0, 0))
}

// Get returns one tenant by id.
// GET /api/v1/admin/tenants/:id
func (h *TenantHandler) Get(c *gin.Context) {
	t, err := h.registry.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			h.Error(c, apperror.NewNotFound("tenant", c.Param("id")))
			return
		}
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTenantDetail(t))
}

// SetActive toggles a tenant's active flag. Tenants are deactivated,
// never deleted.
// PUT /api/v1/admin/tenants/:id/active
func (h *TenantHandler) SetActive(c *gin.Context) {
	var req dto.SetTenantActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.registry.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "tenant updated")
}

// AddDomain attaches a hostname to a tenant.
// POST /api/v1/admin/tenants/:id/domains
func (h *TenantHandler) AddDomain(c *gin.Context) {
	var req dto.AddDomainRequest
	if !h.BindJSON(c, &req) {
		return
	}

	d := &tenant.Domain{
		TenantID:  c.Param("id"),
		Hostname:  req.Hostname,
		IsPrimary: req.IsPrimary,
	}
	if err := h.registry.AddDomain(c.Request.Context(), d); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "domain added")
}
