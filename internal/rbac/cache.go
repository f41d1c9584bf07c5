package rbac

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rbac:version"

// Cache is a read-through Redis cache for the admin role listing. It is
// never authoritative: every mutation bumps the version, invalidating all
// prior keys. Access decisions (MyAccess) bypass it entirely.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchRoles loads the cached role listing or populates it using the loader.
// Concurrent cache misses for the same key share one loader call.
func (c *Cache) FetchRoles(ctx context.Context, loader func(context.Context) ([]Role, error)) ([]Role, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := strings.Join([]string{"rbac", "roles", strconv.FormatInt(ver, 10)}, ":")

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var roles []Role
		if err := json.Unmarshal(payload, &roles); err == nil {
			return roles, nil
		}
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// The load is shared by every collapsed caller, so it must not die
		// with whichever request happened to start it.
		loadCtx := context.WithoutCancel(ctx)
		roles, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(roles); err == nil {
			_ = c.client.Set(loadCtx, key, raw, c.ttl).Err()
		}
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Role), nil
}

// Bump invalidates the cache by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
