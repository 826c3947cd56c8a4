package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	Registry
	byID   map[string]*Tenant
	bySlug map[string]*Tenant
}

func newFakeRegistry(tenants ...*Tenant) *fakeRegistry {
	f := &fakeRegistry{byID: map[string]*Tenant{}, bySlug: map[string]*Tenant{}}
	for _, t := range tenants {
		f.byID[t.ID] = t
		f.bySlug[t.Slug] = t
	}
	return f
}

func (f *fakeRegistry) GetByID(_ context.Context, tenantID string) (*Tenant, error) {
	if t, ok := f.byID[tenantID]; ok {
		return t, nil
	}
	return nil, ErrTenantNotFound
}

func (f *fakeRegistry) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	if t, ok := f.bySlug[slug]; ok {
		return t, nil
	}
	return nil, ErrTenantNotFound
}

const acmeID = "0190f3d2-1111-7abc-8def-000000000001"

func acme() *Tenant {
	return &Tenant{ID: acmeID, Slug: "acme", Active: true, OnboardingStatus: OnboardingCompleted}
}

func newTestResolver(tenants ...*Tenant) *Resolver {
	return NewResolver(newFakeRegistry(tenants...), []string{"api.ledgercore.io", ".ledgercore.io"})
}

func TestResolveHeaderFirst(t *testing.T) {
	r := newTestResolver(acme())

	got, err := r.Resolve(context.Background(), Hints{Header: "acme", Host: "api.ledgercore.io"})
	require.NoError(t, err)
	assert.Equal(t, acmeID, got.ID)
}

func TestResolveHeaderByUUID(t *testing.T) {
	r := newTestResolver(acme())

	got, err := r.Resolve(context.Background(), Hints{Header: acmeID})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)
}

func TestResolveClaimAuthoritative(t *testing.T) {
	r := newTestResolver(acme(), &Tenant{
		ID: "0190f3d2-2222-7abc-8def-000000000002", Slug: "globex", Active: true,
	})

	// Claim wins over an agreeing header.
	got, err := r.Resolve(context.Background(), Hints{Claim: acmeID, Header: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)

	// Disagreeing header is refused, not silently overridden.
	_, err = r.Resolve(context.Background(), Hints{Claim: acmeID, Header: "globex"})
	assert.ErrorIs(t, err, ErrSourceMismatch)

	// Disagreeing subdomain likewise.
	_, err = r.Resolve(context.Background(), Hints{Claim: acmeID, Host: "globex.ledgercore.io"})
	assert.ErrorIs(t, err, ErrSourceMismatch)
}

func TestResolveSubdomain(t *testing.T) {
	r := newTestResolver(acme())

	got, err := r.Resolve(context.Background(), Hints{Host: "acme.ledgercore.io:8443"})
	require.NoError(t, err)
	assert.Equal(t, acmeID, got.ID)

	// The bare apex is not a subdomain candidate.
	_, err = r.Resolve(context.Background(), Hints{Host: "ledgercore.io"})
	assert.ErrorIs(t, err, ErrNoCandidate)

	// Nested labels are not valid slugs.
	_, err = r.Resolve(context.Background(), Hints{Host: "a.b.ledgercore.io"})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestResolvePathPrefix(t *testing.T) {
	r := newTestResolver(acme())

	got, err := r.Resolve(context.Background(), Hints{Host: "api.ledgercore.io", Path: "/tenant/acme/invoices"})
	require.NoError(t, err)
	assert.Equal(t, acmeID, got.ID)
}

func TestResolveSessionBeforeSubdomain(t *testing.T) {
	globex := &Tenant{ID: "0190f3d2-2222-7abc-8def-000000000002", Slug: "globex", Active: true}
	r := newTestResolver(acme(), globex)

	got, err := r.Resolve(context.Background(), Hints{Session: "globex", Host: "acme.ledgercore.io"})
	require.NoError(t, err)
	assert.Equal(t, "globex", got.Slug)
}

func TestResolveInactive(t *testing.T) {
	dormant := acme()
	dormant.Active = false
	r := newTestResolver(dormant)

	_, err := r.Resolve(context.Background(), Hints{Header: "acme"})
	assert.ErrorIs(t, err, ErrTenantNotActive)
}

func TestResolveUnknown(t *testing.T) {
	r := newTestResolver(acme())

	_, err := r.Resolve(context.Background(), Hints{Header: "nonesuch"})
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestResolveNoCandidate(t *testing.T) {
	r := newTestResolver(acme())

	_, err := r.Resolve(context.Background(), Hints{Host: "api.ledgercore.io", Path: "/api/v1/invoices"})
	assert.ErrorIs(t, err, ErrNoCandidate)

	// Malformed identifiers never reach the registry.
	_, err = r.Resolve(context.Background(), Hints{Header: "Not A Slug!!"})
	assert.ErrorIs(t, err, ErrNoCandidate)
}
