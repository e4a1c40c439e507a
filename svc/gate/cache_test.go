package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/svc/gate"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

func TestMemoryCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := gate.NewMemoryCache(2)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", organization.StatusActive, time.Minute))
	st, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, organization.StatusActive, st)

	require.NoError(t, c.Delete(ctx, "a"))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestRedisCache_Unavailable(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := gate.NewRedisCache(client)
	ctx := context.Background()

	_, _, err := c.Get(ctx, "sess")
	assert.ErrorIs(t, err, gate.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Set(ctx, "sess", organization.StatusActive, time.Minute), gate.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Delete(ctx, "sess"), gate.ErrCacheUnavailable)
}
