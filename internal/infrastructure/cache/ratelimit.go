package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgercore/pkg/logger"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

// INCR and PEXPIRE run atomically so two racing first-requests cannot leave
// the counter without an expiry.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter is a fixed-window counter in Redis, shared across instances.
// When Redis is unreachable it degrades to a per-instance in-memory window
// instead of refusing traffic.
type RedisLimiter struct {
	client   *redis.Client
	window   time.Duration
	prefix   string
	fallback *MemoryLimiter
}

// NewRedisLimiter creates a limiter with the given window.
func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		window:   window,
		prefix:   "rl:",
		fallback: NewMemoryLimiter(window),
	}
}

// Allow counts one request against key.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.client == nil {
		return l.fallback.Allow(ctx, key, limit)
	}

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := rateLimitScript.Run(callCtx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		logger.Debug(ctx, "rate limiter falling back to memory", "error", err)
		return l.fallback.Allow(ctx, key, limit)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.fallback.Allow(ctx, key, limit)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}

// MemoryLimiter is the single-instance fixed window fallback.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	items  map[string]memoryEntry
}

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter creates an in-memory fixed window limiter.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{window: window, items: make(map[string]memoryEntry)}
}

// Allow counts one request against key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(now)

	curr, ok := l.items[key]
	if !ok || now.After(curr.resetAt) {
		curr = memoryEntry{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.items[key] = curr

	remaining := limit - curr.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   curr.count <= limit,
		Count:     curr.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   curr.resetAt,
	}
}

func (l *MemoryLimiter) cleanup(now time.Time) {
	for k, v := range l.items {
		if now.After(v.resetAt) {
			delete(l.items, k)
		}
	}
}
