package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/cache"
	"github.com/pagetrail/bookcore/internal/model"
)

func newTestManager(cfg cache.Config) *cache.Manager {
	return cache.New(cache.NewMemoryL1(), cache.NewMemoryL2(), cfg)
}

func TestSearchKeyStableAndOrderIndependent(t *testing.T) {
	k1 := cache.SearchKey("  1984 Orwell  ", "general", map[string]string{"b": "2", "a": "1"})
	k2 := cache.SearchKey("1984 orwell", "general", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, k1, k2)

	k3 := cache.SearchKey("1984 Orwell", "title", map[string]string{"a": "1", "b": "2"})
	assert.NotEqual(t, k1, k3)
}

func TestCacheMissThenSetThenHitL1(t *testing.T) {
	m := newTestManager(cache.DefaultConfig())
	ctx := context.Background()
	key := cache.SearchKey("foundation", "general", nil)

	_, layer, err := m.Get(ctx, key, "primary")
	require.NoError(t, err)
	assert.Equal(t, cache.LayerMiss, layer)

	results := []model.SearchResult{{Title: "Foundation"}}
	require.NoError(t, m.Set(ctx, key, "primary", "primary", results))

	got, layer, err := m.Get(ctx, key, "primary")
	require.NoError(t, err)
	assert.Equal(t, cache.LayerL1, layer)
	assert.Equal(t, "Foundation", got.Results[0].Title)
}

func TestCacheL2HitWhenL1Absent(t *testing.T) {
	cfg := cache.DefaultConfig()
	m := cache.New(nil, cache.NewMemoryL2(), cfg)
	ctx := context.Background()
	key := cache.SearchKey("dune", "general", nil)

	results := []model.SearchResult{{Title: "Dune"}}
	require.NoError(t, m.Set(ctx, key, "primary", "primary", results))

	got, layer, err := m.Get(ctx, key, "primary")
	require.NoError(t, err)
	assert.Equal(t, cache.LayerL2, layer)
	assert.Equal(t, "Dune", got.Results[0].Title)
}

func TestCacheGetStale(t *testing.T) {
	l2 := cache.NewMemoryL2()
	m := cache.New(nil, l2, cache.DefaultConfig())
	ctx := context.Background()
	key := cache.SearchKey("stale book", "general", nil)

	require.NoError(t, m.Set(ctx, key, "primary", "primary", []model.SearchResult{{Title: "Stale"}}))

	// Backdate the row's expiry directly through L2, reusing the already
	// correctly-encoded payload bytes Set just wrote.
	fresh, err := l2.GetStale(ctx, key, "primary")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	fresh.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, l2.Upsert(ctx, *fresh))

	_, layer, err := m.Get(ctx, key, "primary")
	require.NoError(t, err)
	assert.Equal(t, cache.LayerMiss, layer)

	stale, ok, err := m.GetStale(ctx, key, "primary")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Stale", stale.Results[0].Title)
}

func TestStampedeLockSingleAcquirer(t *testing.T) {
	m := newTestManager(cache.DefaultConfig())
	ctx := context.Background()

	var acquiredCount int64
	var wg sync.WaitGroup
	releases := make([]func(), 10)
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, release, err := m.AcquireLock(ctx, "key", "primary")
			require.NoError(t, err)
			if ok {
				atomic.AddInt64(&acquiredCount, 1)
				mu.Lock()
				releases[i] = release
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), acquiredCount)
}

func TestStampedeLockNoOpWhenL1Absent(t *testing.T) {
	m := cache.New(nil, cache.NewMemoryL2(), cache.DefaultConfig())
	ok, release, err := m.AcquireLock(context.Background(), "key", "primary")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestManagerBustEvictsBothLayers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(cache.DefaultConfig())
	require.NoError(t, m.Set(ctx, "key", "primary", "primary", []model.SearchResult{{Title: "Dune"}}))

	_, layer, err := m.Get(ctx, "key", "primary")
	require.NoError(t, err)
	require.Equal(t, cache.LayerL1, layer)

	require.NoError(t, m.Bust(ctx, "key", "primary"))

	_, layer, err = m.Get(ctx, "key", "primary")
	require.NoError(t, err)
	assert.Equal(t, cache.LayerMiss, layer)
}
