package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/id"
	"ledgercore/internal/core/tenant"
)

// TokenConfig holds token service configuration.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultTokenConfig returns the default token configuration.
func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret:     secret,
		Issuer:     "ledgercore",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// Token types carried in the "typ" claim. Access tokens authorize API
// calls; refresh tokens are only good for the refresh endpoint.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload. The tenant binding travels inside the signed
// token, so a request can never present a valid identity for one tenant
// alongside headers naming another without detection.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"uid"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Group       string   `json:"grp"`
	TenantID    string   `json:"tid"`
	TenantSlug  string   `json:"slug"`
	TenantPlan  string   `json:"plan,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	TokenType   string   `json:"typ"`
}

// JTI returns the token's unique identifier.
func (c *Claims) JTI() string {
	return c.RegisteredClaims.ID
}

// Blacklist tracks revoked token identifiers until their natural expiry.
type Blacklist interface {
	// Revoke marks a jti revoked for the given remaining lifetime.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked reports whether a jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenService issues and verifies the access/refresh token pair.
type TokenService struct {
	config    TokenConfig
	blacklist Blacklist
}

// NewTokenService creates a token service.
func NewTokenService(config TokenConfig, blacklist Blacklist) *TokenService {
	return &TokenService{config: config, blacklist: blacklist}
}

// Issue generates a fresh token pair for a user inside a tenant.
func (s *TokenService) Issue(user *User, t *tenant.Tenant) (*TokenPair, error) {
	now := time.Now()

	accessExp := now.Add(s.config.AccessTTL)
	access, err := s.sign(user, t, TokenTypeAccess, now, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.sign(user, t, TokenTypeRefresh, now, now.Add(s.config.RefreshTTL))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExp,
		TokenType:    "Bearer",
	}, nil
}

func (s *TokenService) sign(user *User, t *tenant.Tenant, typ string, now, expiresAt time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New().String(),
			Issuer:    s.config.Issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:     user.ID.String(),
		Email:      user.Email,
		Role:       string(user.Role),
		Group:      string(user.Group()),
		TenantID:   t.ID,
		TenantSlug: t.Slug,
		TenantPlan: string(t.Plan),
		TokenType:  typ,
	}
	if typ == TokenTypeAccess {
		claims.Permissions = user.EffectivePermissions()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// Verify parses an access token, pins the HMAC algorithm, and rejects
// expired or blacklisted tokens.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	return s.verify(ctx, tokenString, TokenTypeAccess)
}

// VerifyRefresh parses a refresh token with the same checks.
func (s *TokenService) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	return s.verify(ctx, tokenString, TokenTypeRefresh)
}

func (s *TokenService) verify(ctx context.Context, tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid token").WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperror.NewUnauthorized("invalid token claims")
	}
	if claims.TokenType != wantType {
		return nil, apperror.NewUnauthorized("wrong token type")
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.JTI())
	if err != nil {
		// The blacklist store being down must not open revoked tokens back up.
		return nil, apperror.NewInternal(fmt.Errorf("blacklist lookup: %w", err))
	}
	if revoked {
		return nil, apperror.NewTokenRevoked()
	}

	return claims, nil
}

// Revoke blacklists the token's jti for its remaining lifetime. Tokens
// already past expiry need no entry.
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return s.blacklist.Revoke(ctx, claims.JTI(), remaining)
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.config.AccessTTL
}
