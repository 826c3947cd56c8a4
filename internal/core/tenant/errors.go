package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when tenant does not exist in the registry.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotActive is returned when tenant exists but is deactivated.
	ErrTenantNotActive = errors.New("tenant is not active")

	// ErrNoCandidate is returned when no source yields a tenant identifier.
	ErrNoCandidate = errors.New("no tenant identifier in request")

	// ErrSourceMismatch is returned when the token-bound tenant disagrees
	// with the header or subdomain hint.
	ErrSourceMismatch = errors.New("tenant sources disagree")

	// ErrBadTransition is returned on a backwards onboarding transition.
	ErrBadTransition = errors.New("onboarding status cannot move backwards")
)
