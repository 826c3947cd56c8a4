package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist stores revoked token ids keyed by jti. Entries carry the
// token's remaining lifetime as TTL, so the set never outgrows the number
// of live revocations. Errors propagate: the token service fails closed.
type TokenBlacklist struct {
	client *redis.Client
	prefix string
}

// NewTokenBlacklist creates a blacklist over the given client.
func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{client: client, prefix: "bl:"}
}

// Revoke marks a jti revoked until its natural expiry.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist jti: %w", err)
	}
	return nil
}

// IsRevoked reports whether a jti has been revoked.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}
