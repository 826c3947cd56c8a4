package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/tenant"
	"ledgercore/internal/domain/authz"
)

type memBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: map[string]time.Time{}}
}

func (b *memBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[jti] = time.Now().Add(ttl)
	return nil
}

func (b *memBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.revoked[jti]
	return ok && time.Now().Before(until), nil
}

func testTenant() *tenant.Tenant {
	return &tenant.Tenant{
		ID: "0190f3d2-1111-7abc-8def-000000000001", Slug: "acme", Plan: "pro",
		Active: true, OnboardingStatus: tenant.OnboardingCompleted,
	}
}

func testUser() *User {
	u := NewUser("0190f3d2-1111-7abc-8def-000000000001", "cfo@acme.test", "x", authz.RoleCFO)
	return u
}

func newTestTokenService(cfg TokenConfig) *TokenService {
	return NewTokenService(cfg, newMemBlacklist())
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestTokenService(DefaultTokenConfig("test-secret"))

	pair, err := svc.Issue(testUser(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "cfo@acme.test", claims.Email)
	assert.Equal(t, "cfo", claims.Role)
	assert.Equal(t, "tenant", claims.Group)
	assert.Equal(t, "acme", claims.TenantSlug)
	assert.Equal(t, "pro", claims.TenantPlan)
	assert.Contains(t, claims.Permissions, authz.PermInvoiceApprove)
	assert.NotEmpty(t, claims.JTI())
}

func TestVerifyRejectsRefreshAsAccess(t *testing.T) {
	svc := newTestTokenService(DefaultTokenConfig("test-secret"))
	pair, err := svc.Issue(testUser(), testTenant())
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.RefreshToken)
	assert.Error(t, err)

	// The refresh token verifies on its own path and omits permissions.
	claims, err := svc.VerifyRefresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, claims.Permissions)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := newTestTokenService(DefaultTokenConfig("secret-one"))
	verifier := newTestTokenService(DefaultTokenConfig("secret-two"))

	pair, err := issuer.Issue(testUser(), testTenant())
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), pair.AccessToken)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	cfg := DefaultTokenConfig("test-secret")
	cfg.AccessTTL = -time.Minute
	svc := newTestTokenService(cfg)

	pair, err := svc.Issue(testUser(), testTenant())
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), pair.AccessToken)
	assert.Error(t, err)
}

func TestRevokeBlacklistsJTI(t *testing.T) {
	svc := newTestTokenService(DefaultTokenConfig("test-secret"))
	ctx := context.Background()

	pair, err := svc.Issue(testUser(), testTenant())
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, claims))

	_, err = svc.Verify(ctx, pair.AccessToken)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeTokenRevoked, appErr.Code)

	// Revocation is per token, not per user.
	other, err := svc.Issue(testUser(), testTenant())
	require.NoError(t, err)
	_, err = svc.Verify(ctx, other.AccessToken)
	assert.NoError(t, err)
}
