package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchRolesReadThrough(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]Role, error) {
		loads++
		return []Role{{ID: "r1", Name: "Editors", Sheets: []Sheet{}}}, nil
	}

	roles, err := cache.FetchRoles(ctx, loader)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, 1, loads)

	// Second fetch is served from Redis.
	roles, err = cache.FetchRoles(ctx, loader)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Editors", roles[0].Name)
	assert.Equal(t, 1, loads)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) ([]Role, error) {
		loads++
		return []Role{}, nil
	}

	_, err := cache.FetchRoles(ctx, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	_, err = cache.FetchRoles(ctx, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

// The rebuild is shared across collapsed callers, so it must be detached
// from the cancellation of whichever request started it.
func TestCacheLoaderDetachedFromCaller(t *testing.T) {
	cache := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loaderDone <-chan struct{} = make(chan struct{})
	_, err := cache.FetchRoles(ctx, func(loadCtx context.Context) ([]Role, error) {
		loaderDone = loadCtx.Done()
		return []Role{}, nil
	})
	require.NoError(t, err)
	assert.Nil(t, loaderDone, "loader context must not carry the caller's cancellation")
}

func TestCacheNilClientPassthrough(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	ctx := context.Background()

	loads := 0
	roles, err := cache.FetchRoles(ctx, func(context.Context) ([]Role, error) {
		loads++
		return []Role{{ID: "r1", Name: "Editors"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, roles, 1)

	_, err = cache.FetchRoles(ctx, func(context.Context) ([]Role, error) {
		loads++
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.NoError(t, cache.Bump(ctx))
}
