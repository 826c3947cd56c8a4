package tenant

import (
	"context"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Hints are the tenant identification sources extracted from a request,
// in resolution priority order: explicit header, verified token claim,
// server-side session, wildcard subdomain, URL path prefix.
type Hints struct {
	Header  string // X-Tenant-ID value
	Claim   string // tenant_id claim from a verified access token
	Session string // server-side session attribute
	Host    string // request Host (port allowed)
	Path    string // request URL path
}

// Resolver turns request hints into a validated active tenant.
type Resolver struct {
	registry  Registry
	wildcards []string // ".example.com" style suffixes from the host allow-list
}

// NewResolver creates a resolver. Wildcard entries of the host allow-list
// double as subdomain-extraction rules.
func NewResolver(registry Registry, allowedHosts []string) *Resolver {
	var wildcards []string
	for _, h := range allowedHosts {
		if strings.HasPrefix(h, ".") {
			wildcards = append(wildcards, strings.ToLower(stripPort(h)))
		}
	}
	return &Resolver{registry: registry, wildcards: wildcards}
}

// Resolve returns the active tenant for the request.
//
// The first well-formed identifier in priority order is looked up. When the
// request carries a token-bound tenant, that claim is authoritative: a
// disagreeing header or subdomain yields ErrSourceMismatch so the caller can
// refuse and audit. No identifier at all yields ErrNoCandidate; unknown or
// deactivated tenants yield ErrTenantNotFound / ErrTenantNotActive.
func (r *Resolver) Resolve(ctx context.Context, h Hints) (*Tenant, error) {
	header := strings.TrimSpace(h.Header)
	subdomain := r.subdomainLabel(h.Host)
	pathID := pathTenant(h.Path)

	if h.Claim != "" {
		t, err := r.lookup(ctx, h.Claim)
		if err != nil {
			return nil, err
		}
		if header != "" && !matches(t, header) {
			return nil, ErrSourceMismatch
		}
		if subdomain != "" && !matches(t, subdomain) {
			return nil, ErrSourceMismatch
		}
		return t, nil
	}

	for _, candidate := range []string{header, h.Session, subdomain, pathID} {
		if candidate == "" || !ValidIdentifier(candidate) {
			continue
		}
		return r.lookup(ctx, candidate)
	}

	return nil, ErrNoCandidate
}

// lookup fetches by UUID or slug and enforces the active flag.
func (r *Resolver) lookup(ctx context.Context, candidate string) (*Tenant, error) {
	var (
		t   *Tenant
		err error
	)
	if _, parseErr := uuid.Parse(candidate); parseErr == nil {
		t, err = r.registry.GetByID(ctx, candidate)
	} else {
		t, err = r.registry.GetBySlug(ctx, strings.ToLower(candidate))
	}
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrTenantNotActive
	}
	return t, nil
}

// subdomainLabel returns the leading DNS label when the host falls under a
// wildcard rule, empty otherwise.
func (r *Resolver) subdomainLabel(host string) string {
	host = strings.ToLower(stripPort(host))
	for _, suffix := range r.wildcards {
		if strings.HasSuffix(host, suffix) && host != suffix[1:] {
			label := strings.TrimSuffix(host, suffix)
			if label != "" && !strings.Contains(label, ".") {
				return label
			}
		}
	}
	return ""
}

// pathTenant extracts the id from a "/tenant/{id}/..." prefix.
func pathTenant(path string) string {
	const prefix = "/tenant/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// matches reports whether candidate names the same tenant as t.
func matches(t *Tenant, candidate string) bool {
	candidate = strings.ToLower(candidate)
	return candidate == strings.ToLower(t.ID) || candidate == t.Slug
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
