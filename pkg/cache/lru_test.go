package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/creatorkit/pkg/cache"
)

func TestLRU_GetSet(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// "b" is now least recently used.
	c.Set("c", 3, 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Set("a", 10, 0)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
}

func TestLRU_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewLRU[string, string](4)
	c.SetClock(func() time.Time { return now })

	c.Set("session", "active", time.Minute)
	_, ok := c.Get("session")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("session")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Delete(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](1)
	c.Set("a", 1, 0)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
}

func TestLRU_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { cache.NewLRU[string, int](0) })
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](64)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("k%d", (i*j)%80)
				c.Set(key, j, time.Minute)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
