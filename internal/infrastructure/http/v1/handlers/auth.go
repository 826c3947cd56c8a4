package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/domain/auth"
	"ledgercore/internal/domain/authz"
	"ledgercore/internal/infrastructure/http/v1/dto"
	"ledgercore/internal/infrastructure/http/v1/middleware"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	BaseHandler
	service *auth.Service
	tokens  *auth.TokenService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(service *auth.Service, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{service: service, tokens: tokens}
}

// Register handles user registration.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.ToAuthRequest())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// Login handles user login, returning the token pair with the user,
// tenant, and navigation blocks.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pair, user, err := h.service.Login(c.Request.Context(), req.ToCredentials())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewTokenResponse(pair, user, middleware.TenantFrom(c)))
}

// Refresh rotates the token pair. The presented refresh token is revoked;
// a second use of it fails.
// POST /auth/token/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if !h.BindJSON(c, &req) {
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewTokenResponse(pair, nil, middleware.TenantFrom(c)))
}

// Logout revokes the presented access token and, when supplied, the
// refresh token. Both land on the blacklist for their remaining lifetime.
// POST /auth/token/blacklist
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := h.bearerClaims(c)
	if !ok {
		return
	}

	var req dto.LogoutRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims, req.RefreshToken); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "logged out")
}

// RequestPasswordReset starts the password reset flow. The response does
// not reveal whether the address exists.
// POST /auth/password/reset
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "if the address exists, a reset link has been sent")
}

// ConfirmPasswordReset completes the reset flow with a one-time token.
// POST /auth/password/reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req dto.PasswordResetConfirmRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "password updated")
}

// VerifyEmail confirms an email address with a one-time token.
// POST /auth/email/verify
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "email verified")
}

// --- User management (protected) ---

// GetUser returns one user of the current tenant.
// GET /api/v1/users/:id
func (h *AuthHandler) GetUser(c *gin.Context) {
	userID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromUser(user))
}

// ListUsers lists the current tenant's users.
// GET /api/v1/users
func (h *AuthHandler) ListUsers(c *gin.Context) {
	var req struct {
		dto.PaginationRequest
		Search string `form:"search"`
		Role   string `form:"role"`
	}
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	users, total, err := h.service.ListUsers(c.Request.Context(), auth.UserFilter{
		Search: req.Search,
		Role:   req.Role,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]*dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.FromUser(&users[i]))
	}
	h.OK(c, dto.NewListResponse(items, total, req.Limit, req.Offset))
}

// ChangeRole assigns a role to a user. The caller's own role caps what
// they can grant.
// PUT /api/v1/users/:id/role
func (h *AuthHandler) ChangeRole(c *gin.Context) {
	userID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.ChangeRoleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	role, valid := authz.ParseRole(req.Role)
	if !valid {
		h.Error(c, apperror.NewValidation("unknown role").WithDetail("role", req.Role))
		return
	}

	if err := h.service.ChangeRole(c.Request.Context(), userID, role); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "role updated")
}

// bearerClaims verifies the request's own bearer token for endpoints that
// work on it directly.
func (h *AuthHandler) bearerClaims(c *gin.Context) (*auth.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		h.Error(c, apperror.NewUnauthorized("missing bearer token"))
		return nil, false
	}

	claims, err := h.tokens.Verify(c.Request.Context(), parts[1])
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return claims, true
}
