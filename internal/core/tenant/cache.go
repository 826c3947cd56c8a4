package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ledgercore/pkg/logger"
)

// key prefixes in the shared key-value store
const (
	cacheByIDPrefix   = "tn:id:"
	cacheBySlugPrefix = "tn:slug:"
	cacheByHostPrefix = "tn:host:"
)

// CachedRegistry is a read-through snapshot cache in front of the canonical
// registry. Snapshots carry a short TTL; mutations invalidate eagerly.
// Cache failures degrade to the canonical store, never to an error.
type CachedRegistry struct {
	Registry

	client *redis.Client
	ttl    time.Duration
}

// NewCachedRegistry wraps inner with a redis snapshot cache.
func NewCachedRegistry(inner Registry, client *redis.Client, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedRegistry{Registry: inner, client: client, ttl: ttl}
}

func (c *CachedRegistry) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	if t := c.lookup(ctx, cacheByIDPrefix+tenantID); t != nil {
		return t, nil
	}
	t, err := c.Registry.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	if t := c.lookup(ctx, cacheBySlugPrefix+slug); t != nil {
		return t, nil
	}
	t, err := c.Registry.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedRegistry) GetByHostname(ctx context.Context, hostname string) (*Tenant, error) {
	if t := c.lookup(ctx, cacheByHostPrefix+hostname); t != nil {
		return t, nil
	}
	t, err := c.Registry.GetByHostname(ctx, hostname)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	c.set(ctx, cacheByHostPrefix+hostname, t)
	return t, nil
}

func (c *CachedRegistry) SetActive(ctx context.Context, tenantID string, active bool) error {
	if err := c.Registry.SetActive(ctx, tenantID, active); err != nil {
		return err
	}
	c.invalidate(ctx, tenantID)
	return nil
}

func (c *CachedRegistry) AdvanceOnboarding(ctx context.Context, tenantID string, next OnboardingStatus) error {
	if err := c.Registry.AdvanceOnboarding(ctx, tenantID, next); err != nil {
		return err
	}
	c.invalidate(ctx, tenantID)
	return nil
}

func (c *CachedRegistry) lookup(ctx context.Context, key string) *Tenant {
	if c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Debug(ctx, "tenant cache read failed", "key", key, "error", err)
		}
		return nil
	}
	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil
	}
	return &t
}

func (c *CachedRegistry) store(ctx context.Context, t *Tenant) {
	c.set(ctx, cacheByIDPrefix+t.ID, t)
	c.set(ctx, cacheBySlugPrefix+t.Slug, t)
}

func (c *CachedRegistry) set(ctx context.Context, key string, t *Tenant) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "tenant cache write failed", "key", key, "error", err)
	}
}

func (c *CachedRegistry) invalidate(ctx context.Context, tenantID string) {
	if c.client == nil {
		return
	}
	// Slug/host keys expire by TTL; the id key is dropped eagerly since the
	// middleware path resolves mostly by id.
	t, err := c.Registry.GetByID(ctx, tenantID)
	keys := []string{cacheByIDPrefix + tenantID}
	if err == nil {
		keys = append(keys, cacheBySlugPrefix+t.Slug)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Debug(ctx, "tenant cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}
