package auth

import (
	"context"

	"ledgercore/internal/core/id"
)

// UserRepository defines user storage operations. Implementations run
// behind the tenant guard: every query is tenant-scoped unless the caller
// explicitly opts out through an audited unchecked session.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID within the current tenant.
	GetByID(ctx context.Context, userID id.ID) (*User, error)

	// GetByEmail retrieves a user by email within the current tenant.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates user data with optimistic version check.
	Update(ctx context.Context, user *User) error

	// Delete soft-deletes a user.
	Delete(ctx context.Context, userID id.ID) error

	// List retrieves users with filtering.
	List(ctx context.Context, filter UserFilter) ([]User, int, error)

	// Exists checks if an email is taken within the current tenant.
	Exists(ctx context.Context, email string) (bool, error)

	// CountByTenant returns the number of active users in the current
	// tenant, for quota checks.
	CountByTenant(ctx context.Context) (int, error)
}

// ActionTokenRepository stores hashed one-time tokens.
type ActionTokenRepository interface {
	// Save persists a new action token.
	Save(ctx context.Context, token *ActionToken) error

	// GetByHash retrieves a token by its hash and purpose.
	GetByHash(ctx context.Context, tokenHash string, purpose ActionTokenPurpose) (*ActionToken, error)

	// MarkUsed consumes a token; a token is consumed at most once.
	MarkUsed(ctx context.Context, tokenID id.ID) error

	// InvalidateForUser voids outstanding tokens of one purpose for a user.
	InvalidateForUser(ctx context.Context, userID id.ID, purpose ActionTokenPurpose) error

	// CleanupExpired removes expired tokens.
	CleanupExpired(ctx context.Context) (int, error)
}

// UserFilter for listing users.
type UserFilter struct {
	Search   string
	IsActive *bool
	Role     string
	Limit    int
	Offset   int
}
