package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterCountsWithinWindow(t *testing.T) {
	_, client := testClient(t)
	l := NewRedisLimiter(client, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		dec := l.Allow(ctx, "ip:10.0.0.1", 3)
		assert.True(t, dec.Allowed, "request %d", i)
		assert.Equal(t, i, dec.Count)
	}

	dec := l.Allow(ctx, "ip:10.0.0.1", 3)
	assert.False(t, dec.Allowed)
	assert.Equal(t, 0, dec.Remaining)
	assert.False(t, dec.ResetAt.IsZero())
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	_, client := testClient(t)
	l := NewRedisLimiter(client, time.Minute)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "a", 0).Allowed) // limit 0 coerces to 1
	l.Allow(ctx, "a", 1)
	assert.False(t, l.Allow(ctx, "a", 1).Allowed)
	assert.True(t, l.Allow(ctx, "b", 1).Allowed)
}

func TestRedisLimiterWindowResets(t *testing.T) {
	mr, client := testClient(t)
	l := NewRedisLimiter(client, time.Second)
	ctx := context.Background()

	l.Allow(ctx, "k", 1)
	assert.False(t, l.Allow(ctx, "k", 1).Allowed)

	mr.FastForward(2 * time.Second)
	assert.True(t, l.Allow(ctx, "k", 1).Allowed)
}

func TestRedisLimiterFallsBackWhenRedisDown(t *testing.T) {
	mr, client := testClient(t)
	l := NewRedisLimiter(client, time.Minute)
	ctx := context.Background()
	mr.Close()

	dec := l.Allow(ctx, "k", 2)
	assert.True(t, dec.Allowed)
	l.Allow(ctx, "k", 2)
	assert.False(t, l.Allow(ctx, "k", 2).Allowed)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(50 * time.Millisecond)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "k", 2).Allowed)
	assert.True(t, l.Allow(ctx, "k", 2).Allowed)
	assert.False(t, l.Allow(ctx, "k", 2).Allowed)

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "k", 2).Allowed)
}

func TestTokenBlacklist(t *testing.T) {
	mr, client := testClient(t)
	b := NewTokenBlacklist(client)
	ctx := context.Background()

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Entries fall out once the token would have expired anyway.
	mr.FastForward(2 * time.Minute)
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenBlacklistExpiredTokenIsNoop(t *testing.T) {
	mr, client := testClient(t)
	b := NewTokenBlacklist(client)

	require.NoError(t, b.Revoke(context.Background(), "jti-2", -time.Second))
	assert.False(t, mr.Exists("bl:jti-2"))
}

func TestTokenBlacklistErrorsPropagate(t *testing.T) {
	mr, client := testClient(t)
	b := NewTokenBlacklist(client)
	mr.Close()

	_, err := b.IsRevoked(context.Background(), "jti-3")
	assert.Error(t, err)
}
