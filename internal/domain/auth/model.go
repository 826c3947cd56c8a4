// Package auth provides authentication: credentials, token issuance and
// verification, and the login/registration flows.
package auth

import (
	"context"
	"strings"
	"time"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/domain/authz"
)

// User represents an account bound to exactly one tenant. Platform
// operators carry the multi-tenant group and a nil tenant binding rule is
// never used: they too live in a home tenant row, their group widens reach.
type User struct {
	ID                  id.ID      `db:"id" json:"id"`
	TenantID            string     `db:"tenant_id" json:"tenantId"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FirstName           string     `db:"first_name" json:"firstName,omitempty"`
	LastName            string     `db:"last_name" json:"lastName,omitempty"`
	Role                authz.Role `db:"role" json:"role"`
	ExtraPermissions    []string   `db:"extra_permissions" json:"-"`
	IsActive            bool       `db:"is_active" json:"isActive"`
	EmailVerified       bool       `db:"email_verified" json:"emailVerified"`
	EmailVerifiedAt     *time.Time `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	LastLoginAt         *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt           *time.Time `db:"deleted_at" json:"-"`
	Version             int        `db:"version" json:"version"`
}

// NewUser creates a new user in the given tenant.
func NewUser(tenantID, email, passwordHash string, role authz.Role) *User {
	now := time.Now()
	return &User{
		ID:           id.New(),
		TenantID:     tenantID,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

// Validate validates user data.
func (u *User) Validate(ctx context.Context) error {
	if u.Email == "" {
		return apperror.NewValidation("email is required").WithDetail("field", "email")
	}
	if u.TenantID == "" {
		return apperror.NewValidation("tenant is required").WithDetail("field", "tenantId")
	}
	if !u.Role.Valid() {
		return apperror.NewValidation("unknown role").WithDetail("role", string(u.Role))
	}
	return nil
}

// Group returns the tenancy group derived from the role.
func (u *User) Group() authz.Group {
	return u.Role.Group()
}

// EffectivePermissions is the role's permission set widened by per-user
// grants.
func (u *User) EffectivePermissions() []string {
	return authz.PermissionsFor(u.Role, u.ExtraPermissions...)
}

// IsLocked returns true if the account is locked.
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// CanLogin checks if the user may authenticate.
func (u *User) CanLogin() error {
	if !u.IsActive {
		return apperror.NewForbidden("account is disabled")
	}
	if !u.EmailVerified {
		return apperror.NewForbidden("email address is not verified")
	}
	if u.IsLocked() {
		return apperror.NewForbidden("account is temporarily locked")
	}
	return nil
}

// RecordFailedLogin increments the failed login counter.
func (u *User) RecordFailedLogin(maxAttempts int, lockDuration time.Duration) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		lockUntil := time.Now().Add(lockDuration)
		u.LockedUntil = &lockUntil
	}
}

// RecordSuccessfulLogin resets the failed login counter.
func (u *User) RecordSuccessfulLogin() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	now := time.Now()
	u.LastLoginAt = &now
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// TokenPair is the issued access/refresh pair.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

// Credentials for login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest for user registration.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// ActionTokenPurpose names a one-time token flow.
type ActionTokenPurpose string

const (
	PurposeEmailVerify   ActionTokenPurpose = "email_verify"
	PurposePasswordReset ActionTokenPurpose = "password_reset"
)

// ActionToken is a hashed one-time token for email verification and
// password reset. Only the SHA-256 of the raw token touches storage.
type ActionToken struct {
	ID        id.ID              `db:"id"`
	UserID    id.ID              `db:"user_id"`
	TenantID  string             `db:"tenant_id"`
	TokenHash string             `db:"token_hash"`
	Purpose   ActionTokenPurpose `db:"purpose"`
	ExpiresAt time.Time          `db:"expires_at"`
	UsedAt    *time.Time         `db:"used_at"`
	CreatedAt time.Time          `db:"created_at"`
}

// IsValid reports whether the token is unused and unexpired.
func (t *ActionToken) IsValid() bool {
	return t.UsedAt == nil && time.Now().Before(t.ExpiresAt)
}
