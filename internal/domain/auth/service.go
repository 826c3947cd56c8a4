package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/reqctx"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/core/tx"
	"ledgercore/internal/domain/authz"
	"ledgercore/pkg/logger"
)

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts  int
	LockDuration      time.Duration
	PasswordMinLength int
	ResetTokenTTL     time.Duration
	VerifyTokenTTL    time.Duration
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts:  5,
		LockDuration:      15 * time.Minute,
		PasswordMinLength: 8,
		ResetTokenTTL:     time.Hour,
		VerifyTokenTTL:    24 * time.Hour,
	}
}

// Auditor records authentication events. Login and logout are recorded on
// both success and failure paths; a failed audit write refuses the login.
type Auditor interface {
	Auth(ctx context.Context, action string, success bool, details map[string]any) error
}

// Notifier delivers one-time tokens to users out of band.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string)
	SendPasswordReset(ctx context.Context, email, token string)
}

// LogNotifier is the development notifier: it logs that a message would be
// sent without exposing the token.
type LogNotifier struct{}

func (LogNotifier) SendVerification(ctx context.Context, email, _ string) {
	logger.Info(ctx, "verification email queued", "email", email)
}

func (LogNotifier) SendPasswordReset(ctx context.Context, email, _ string) {
	logger.Info(ctx, "password reset email queued", "email", email)
}

// Service implements the authentication flows.
type Service struct {
	userRepo  UserRepository
	tokenRepo ActionTokenRepository
	registry  tenant.Registry
	tokenSvc  *TokenService
	txManager tx.Manager
	auditor   Auditor
	notifier  Notifier
	config    ServiceConfig
}

// NewService creates the auth service.
func NewService(
	userRepo UserRepository,
	tokenRepo ActionTokenRepository,
	registry tenant.Registry,
	tokenSvc *TokenService,
	txManager tx.Manager,
	auditor Auditor,
	notifier Notifier,
	config ServiceConfig,
) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		registry:  registry,
		tokenSvc:  tokenSvc,
		txManager: txManager,
		auditor:   auditor,
		notifier:  notifier,
		config:    config,
	}
}

func (s *Service) requireTenant(ctx context.Context) (*tenant.Tenant, error) {
	tenantID := reqctx.TenantID(ctx)
	if tenantID == "" {
		return nil, apperror.NewTenantRequired()
	}
	t, err := s.registry.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.NewInvalidTenant(tenantID)
	}
	return t, nil
}

// Register creates a new user in the resolved tenant and queues email
// verification. New users start at the bottom of the role hierarchy; only
// an admin widens them afterwards.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	t, err := s.requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, apperror.NewValidation("email is required").WithDetail("field", "email")
	}
	if len(req.Password) < s.config.PasswordMinLength {
		return nil, apperror.NewValidation(
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength),
		).WithDetail("field", "password")
	}

	exists, err := s.userRepo.Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email exists: %w", err)
	}
	if exists {
		return nil, apperror.NewConflict("email already registered").WithDetail("email", email)
	}

	if t.UserQuota > 0 {
		count, err := s.userRepo.CountByTenant(ctx)
		if err != nil {
			return nil, fmt.Errorf("count tenant users: %w", err)
		}
		if count >= t.UserQuota {
			return nil, apperror.NewConflict("tenant user quota reached").
				WithDetail("quota", t.UserQuota)
		}
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := NewUser(t.ID, email, passwordHash, authz.RoleStaff)
	user.FirstName = req.FirstName
	user.LastName = req.LastName

	var rawVerify string
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		raw, err := s.issueActionToken(ctx, user, PurposeEmailVerify, s.config.VerifyTokenTTL)
		if err != nil {
			return err
		}
		rawVerify = raw
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendVerification(ctx, user.Email, rawVerify)
	logger.Info(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login authenticates a user inside the resolved tenant and issues a token
// pair. Failures burn the same bcrypt cost as successes and never reveal
// which of email or password was wrong.
func (s *Service) Login(ctx context.Context, creds Credentials) (*TokenPair, *User, error) {
	t, err := s.requireTenant(ctx)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if err != nil {
		burnPasswordCheck(creds.Password)
		_ = s.auditor.Auth(ctx, "LOGIN", false, map[string]any{"email": creds.Email, "reason": "unknown_user"})
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	if err := user.CanLogin(); err != nil {
		_ = s.auditor.Auth(ctx, "LOGIN", false, map[string]any{"email": user.Email, "reason": "blocked"})
		return nil, nil, err
	}

	if !CheckPassword(user.PasswordHash, creds.Password) {
		user.RecordFailedLogin(s.config.MaxLoginAttempts, s.config.LockDuration)
		_ = s.userRepo.Update(ctx, user)
		_ = s.auditor.Auth(ctx, "LOGIN", false, map[string]any{"email": user.Email, "reason": "bad_password"})
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	pair, err := s.tokenSvc.Issue(user, t)
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	user.RecordSuccessfulLogin()
	_ = s.userRepo.Update(ctx, user)

	if err := s.auditor.Auth(ctx, "LOGIN", true, map[string]any{"email": user.Email, "user_id": user.ID.String()}); err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "user logged in", "user_id", user.ID, "email", user.Email)
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The old
// refresh token is revoked, so each one is good for a single exchange.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokenSvc.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	// Refresh arrives unauthenticated; scope the lookup to the token's
	// tenant binding.
	scoped := reqctx.With(ctx, &reqctx.Context{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
		Group:    claims.Group,
	})

	t, err := s.registry.GetByID(scoped, claims.TenantID)
	if err != nil || !t.IsActive() {
		return nil, apperror.NewUnauthorized("tenant no longer available")
	}

	userID, err := id.Parse(claims.UserID)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid token subject")
	}
	user, err := s.userRepo.GetByID(scoped, userID)
	if err != nil {
		return nil, apperror.NewUnauthorized("user not found")
	}
	if err := user.CanLogin(); err != nil {
		return nil, err
	}

	if err := s.tokenSvc.Revoke(ctx, claims); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	return s.tokenSvc.Issue(user, t)
}

// Logout revokes the presented access token and, when supplied, the
// refresh token.
func (s *Service) Logout(ctx context.Context, access *Claims, refreshToken string) error {
	if err := s.tokenSvc.Revoke(ctx, access); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken != "" {
		if claims, err := s.tokenSvc.VerifyRefresh(ctx, refreshToken); err == nil {
			_ = s.tokenSvc.Revoke(ctx, claims)
		}
	}
	_ = s.auditor.Auth(ctx, "LOGOUT", true, map[string]any{"user_id": access.UserID})
	logger.Info(ctx, "user logged out", "user_id", access.UserID)
	return nil
}

// RequestPasswordReset starts the reset flow. The response is identical
// whether or not the email exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.requireTenant(ctx); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		burnPasswordCheck(email)
		return nil
	}

	var raw string
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.tokenRepo.InvalidateForUser(ctx, user.ID, PurposePasswordReset); err != nil {
			return fmt.Errorf("invalidate reset tokens: %w", err)
		}
		raw, err = s.issueActionToken(ctx, user, PurposePasswordReset, s.config.ResetTokenTTL)
		return err
	})
	if err != nil {
		return err
	}

	s.notifier.SendPasswordReset(ctx, user.Email, raw)
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < s.config.PasswordMinLength {
		return apperror.NewValidation(
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength),
		).WithDetail("field", "password")
	}

	token, err := s.tokenRepo.GetByHash(ctx, hashToken(rawToken), PurposePasswordReset)
	if err != nil || !token.IsValid() {
		return apperror.NewUnauthorized("invalid or expired reset token")
	}

	user, err := s.userRepo.GetByID(ctx, token.UserID)
	if err != nil {
		return apperror.NewUnauthorized("invalid or expired reset token")
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		user.PasswordHash = passwordHash
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := s.tokenRepo.MarkUsed(ctx, token.ID); err != nil {
			return err
		}
		return s.auditor.Auth(ctx, "UPDATE", true, map[string]any{"user_id": user.ID.String(), "change": "password_reset"})
	})
	return err
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	token, err := s.tokenRepo.GetByHash(ctx, hashToken(rawToken), PurposeEmailVerify)
	if err != nil || !token.IsValid() {
		return apperror.NewUnauthorized("invalid or expired verification token")
	}

	user, err := s.userRepo.GetByID(ctx, token.UserID)
	if err != nil {
		return apperror.NewUnauthorized("invalid or expired verification token")
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now()
		user.EmailVerified = true
		user.EmailVerifiedAt = &now
		if err := s.userRepo.Update(ctx, user); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		return s.tokenRepo.MarkUsed(ctx, token.ID)
	})
}

// ChangeRole widens or narrows a user's role. Only callers who already
// outrank the target role may assign it.
func (s *Service) ChangeRole(ctx context.Context, userID id.ID, newRole authz.Role) error {
	if !newRole.Valid() {
		return apperror.NewValidation("unknown role").WithDetail("role", string(newRole))
	}
	rc := reqctx.From(ctx)
	if rc == nil || !authz.Role(rc.Role).AtLeast(newRole) {
		return apperror.NewForbidden("cannot assign a role above your own")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return apperror.NewNotFound("user", userID.String())
	}

	old := user.Role
	user.Role = newRole
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("change role: %w", err)
	}

	if err := s.auditor.Auth(ctx, "UPDATE", true, map[string]any{
		"user_id": userID.String(), "change": "role", "from": string(old), "to": string(newRole),
	}); err != nil {
		return err
	}
	logger.Info(ctx, "role changed", "target_user_id", userID, "from", old, "to", newRole)
	return nil
}

// GetUserByID retrieves a user within the current tenant.
func (s *Service) GetUserByID(ctx context.Context, userID id.ID) (*User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	return user, nil
}

// ListUsers lists tenant users with filtering.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	return s.userRepo.List(ctx, filter)
}

func (s *Service) issueActionToken(ctx context.Context, user *User, purpose ActionTokenPurpose, ttl time.Duration) (string, error) {
	raw, err := generateRandomToken(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := &ActionToken{
		ID:        id.New(),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		TokenHash: hashToken(raw),
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	if err := s.tokenRepo.Save(ctx, token); err != nil {
		return "", fmt.Errorf("save action token: %w", err)
	}
	return raw, nil
}
