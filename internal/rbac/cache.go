package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through store of flat effective permission sets. Keys are
// namespaced by a per-role version so a role default write invalidates every
// user of that role with one INCR; per-user writes delete the current key.
// Both invalidations happen synchronously before the mutating call returns.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) version(ctx context.Context, role string) int64 {
	v, err := c.client.Get(ctx, "meridian:perms:ver:"+role).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) userKey(ctx context.Context, role string, userID int64) string {
	return fmt.Sprintf("meridian:perms:v%d:%s:%d", c.version(ctx, role), role, userID)
}

// Get returns the cached effective set for a user, if present.
func (c *Cache) Get(ctx context.Context, role string, userID int64) (map[string]bool, bool) {
	if !c.enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.userKey(ctx, role, userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var set map[string]bool
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, false
	}
	return set, true
}

// Set stores the effective set for a user.
func (c *Cache) Set(ctx context.Context, role string, userID int64, set map[string]bool) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.userKey(ctx, role, userID), data, c.ttl).Err()
}

// InvalidateUser drops the cached set for one user.
func (c *Cache) InvalidateUser(ctx context.Context, role string, userID int64) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, c.userKey(ctx, role, userID)).Err()
}

// InvalidateRole bumps the role version, orphaning every cached set for
// that role. Orphaned keys age out via TTL.
func (c *Cache) InvalidateRole(ctx context.Context, role string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, "meridian:perms:ver:"+role).Err()
}
