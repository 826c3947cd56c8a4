package dto

import (
	"time"

	"ledgercore/internal/core/tenant"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/authz"
)

// --- Request DTOs ---

// RegisterRequest for user registration.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// ToAuthRequest converts to domain request.
func (r *RegisterRequest) ToAuthRequest() auth.RegisterRequest {
	return auth.RegisterRequest{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}

// LoginRequest for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ToCredentials converts to domain credentials.
func (r *LoginRequest) ToCredentials() auth.Credentials {
	return auth.Credentials{Email: r.Email, Password: r.Password}
}

// RefreshTokenRequest for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest revokes the session. The refresh token travels in the
// body; the access token is the bearer credential of the request itself.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// PasswordResetRequest starts the reset flow.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetConfirmRequest completes the reset flow.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// VerifyEmailRequest confirms an address.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// ChangeRoleRequest assigns a role to a user.
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// --- Response DTOs ---

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	FullName      string    `json:"fullName"`
	Role          string    `json:"role"`
	Group         string    `json:"group"`
	Permissions   []string  `json:"permissions"`
	IsActive      bool      `json:"isActive"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FromUser creates a response from a domain user.
func FromUser(u *auth.User) *UserResponse {
	return &UserResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		FullName:      u.FullName(),
		Role:          string(u.Role),
		Group:         string(u.Group()),
		Permissions:   u.EffectivePermissions(),
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// TenantResponse is the tenant block of the token response.
type TenantResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Plan string `json:"plan"`
}

// FromTenant creates a response from a registry tenant.
func FromTenant(t *tenant.Tenant) *TenantResponse {
	return &TenantResponse{
		ID:   t.ID,
		Name: t.DisplayName,
		Slug: t.Slug,
		Plan: string(t.Plan),
	}
}

// NavigationResponse tells the client which sections to render.
type NavigationResponse struct {
	UserType   string   `json:"user_type"`
	Group      string   `json:"group"`
	Role       string   `json:"role"`
	Navigation []string `json:"navigation"`
}

// navSections maps permissions to the UI section they unlock, in render
// order.
var navSections = []struct {
	perm    string
	section string
}{
	{authz.PermInvoiceRead, "invoices"},
	{authz.PermReportRead, "reports"},
	{authz.PermUserManage, "users"},
	{authz.PermAuditRead, "audit"},
	{authz.PermTenantManage, "settings"},
	{authz.PermPlatformManage, "platform"},
}

// BuildNavigation derives the navigation block from a user's effective
// permissions.
func BuildNavigation(u *auth.User) *NavigationResponse {
	perms := make(map[string]bool)
	for _, p := range u.EffectivePermissions() {
		perms[p] = true
	}

	sections := []string{"dashboard"}
	for _, s := range navSections {
		if perms[s.perm] {
			sections = append(sections, s.section)
		}
	}

	return &NavigationResponse{
		UserType:   string(u.Role),
		Group:      string(u.Group()),
		Role:       string(u.Role),
		Navigation: sections,
	}
}

// TokenResponse is the token endpoint response.
type TokenResponse struct {
	Access     string              `json:"access"`
	Refresh    string              `json:"refresh"`
	ExpiresAt  time.Time           `json:"expiresAt"`
	User       *UserResponse       `json:"user"`
	Tenant     *TenantResponse     `json:"tenant"`
	Navigation *NavigationResponse `json:"navigation"`
}

// NewTokenResponse assembles the full login/refresh payload.
func NewTokenResponse(pair *auth.TokenPair, u *auth.User, t *tenant.Tenant) *TokenResponse {
	resp := &TokenResponse{
		Access:    pair.AccessToken,
		Refresh:   pair.RefreshToken,
		ExpiresAt: pair.ExpiresAt,
	}
	if u != nil {
		resp.User = FromUser(u)
		resp.Navigation = BuildNavigation(u)
	}
	if t != nil {
		resp.Tenant = FromTenant(t)
	}
	return resp
}
