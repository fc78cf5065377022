package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
)

func newTestMemoryCache(t *testing.T, maxEntries int) *memoryCache {
	t.Helper()

	c := newMemoryCache(&config.CacheConfig{
		Enabled:    true,
		MaxEntries: maxEntries,
		TTL:        config.Duration(time.Minute),
	}, observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_GetSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 10)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value := []byte("snapshot")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 10)

	require.NoError(t, c.SetWithTags(ctx, "k", []byte("v"), 10*time.Millisecond, "tenant:a"))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Empty(t, c.tags, "expired entry must leave the tag index")
}

func TestMemoryCache_NegativeTTLUsesDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 10)

	before := time.Now()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))

	c.mu.Lock()
	entry := c.items["k"].Value.(*memoryCacheEntry)
	c.mu.Unlock()

	require.False(t, entry.expiresAt.IsZero(), "entry must not live forever")
	assert.WithinDuration(t, before.Add(time.Minute), entry.expiresAt, time.Second)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 2)

	require.NoError(t, c.SetWithTags(ctx, "a", []byte("1"), 0, "tenant:x"))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), c.Stats().Size)
}

func TestMemoryCache_InvalidateTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 100)

	require.NoError(t, c.SetWithTags(ctx, "cred:1", []byte("a"), 0, "tenant:a"))
	require.NoError(t, c.SetWithTags(ctx, "cred:2", []byte("a"), 0, "tenant:a"))
	require.NoError(t, c.SetWithTags(ctx, "cred:3", []byte("b"), 0, "tenant:b"))

	n, err := c.InvalidateTag(ctx, "tenant:a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Get(ctx, "cred:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "cred:2")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "cred:3")
	assert.NoError(t, err)

	n, err = c.InvalidateTag(ctx, "tenant:a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryCache_RetagOnOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 100)

	require.NoError(t, c.SetWithTags(ctx, "k", []byte("v1"), 0, "tenant:old"))
	require.NoError(t, c.SetWithTags(ctx, "k", []byte("v2"), 0, "tenant:new"))

	n, err := c.InvalidateTag(ctx, "tenant:old")
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestMemoryCache_DeleteAndCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 100)

	require.NoError(t, c.SetWithTags(ctx, "k", []byte("v"), 0, "tenant:a"))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "absent"))
	assert.Empty(t, c.tags)

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Hour))
	time.Sleep(5 * time.Millisecond)
	c.cleanup()
	assert.Equal(t, int64(1), c.Stats().Size)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestMemoryCache(t, 50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%60)
				_ = c.SetWithTags(ctx, key, []byte("v"), 0, fmt.Sprintf("tenant:%d", worker))
				_, _ = c.Get(ctx, key)
				if j%25 == 0 {
					_, _ = c.InvalidateTag(ctx, fmt.Sprintf("tenant:%d", worker))
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, int64(50))
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache(t, 10)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
