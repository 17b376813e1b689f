package cache

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_DeterministicRegardlessOfFilterOrder(t *testing.T) {
	k1 := Key("tenant-a", "github", "issues", map[string]any{"state": "open", "repo": "acme/widgets"})
	k2 := Key("tenant-a", "github", "issues", map[string]any{"repo": "acme/widgets", "state": "open"})
	assert.Equal(t, k1, k2)

	k3 := Key("tenant-a", "github", "issues", map[string]any{"state": "closed", "repo": "acme/widgets"})
	assert.NotEqual(t, k1, k3)
}

func TestCache_PutGet_RoundTrips(t *testing.T) {
	c := New(10, 60_000)
	now := time.Now()
	c.Put("k1", "payload", now)

	entry, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "payload", entry.Data)
}

func TestCache_Get_EvictsPastHardTTL(t *testing.T) {
	c := New(10, 100)
	c.Put("k1", "payload", time.Now().Add(-time.Hour))

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(2, 60_000)
	now := time.Now()
	c.Put("a", 1, now)
	c.Put("b", 2, now)
	c.Put("c", 2, now) // evicts "a", the least recently used

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_GetOrFetch_CoalescesConcurrentMisses(t *testing.T) {
	c := New(10, 60_000)
	var calls int64

	fetch := func() (any, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "fetched", nil
	}

	results := make(chan any, 8)
	for i := 0; i < 8; i++ {
		go func() {
			data, _, _, _ := c.GetOrFetch("shared-key", 60_000, fetch)
			results <- data
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, "fetched", <-results)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestCache_GetOrFetch_PropagatesFetchError(t *testing.T) {
	c := New(10, 60_000)
	wantErr := errors.New("upstream down")

	_, _, _, err := c.GetOrFetch("k", 60_000, func() (any, error) { return nil, wantErr })
	assert.ErrorIs(t, err, wantErr)

	_, ok := c.Get("k")
	assert.False(t, ok, "a failed fetch must not populate the cache")
}

func TestEntry_IsFresh(t *testing.T) {
	e := Entry{FetchedAt: time.Now().Add(-5 * time.Second)}
	assert.True(t, e.IsFresh(10_000, time.Now()))
	assert.False(t, e.IsFresh(1_000, time.Now()))
	assert.False(t, e.IsFresh(0, time.Now()), "zero max staleness never accepts cached data")
}

func TestCache_GetOrFetch_ZeroMaxStalenessAlwaysFetchesLive(t *testing.T) {
	c := New(10, 60_000)
	c.Put("k", "stale-payload", time.Now())

	var calls int64
	data, fromCache, stale, err := c.GetOrFetch("k", 0, func() (any, error) {
		atomic.AddInt64(&calls, 1)
		return "fresh-payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "max_staleness_ms=0 must bypass the cache read")
	assert.False(t, fromCache)
	assert.False(t, stale)
	assert.Equal(t, "fresh-payload", data)
}

func TestCache_GetOrFetch_ServesFreshEntryWithoutCallingFetch(t *testing.T) {
	c := New(10, 60_000)
	c.Put("k", "cached-payload", time.Now())

	var calls int64
	data, fromCache, stale, err := c.GetOrFetch("k", 60_000, func() (any, error) {
		atomic.AddInt64(&calls, 1)
		return "fresh-payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	assert.True(t, fromCache)
	assert.False(t, stale)
	assert.Equal(t, "cached-payload", data)
}

func TestCache_GetOrFetch_RefetchesWhenEntryExceedsStaleness(t *testing.T) {
	c := New(10, 60_000)
	c.Put("k", "old-payload", time.Now().Add(-10*time.Second))

	data, fromCache, stale, err := c.GetOrFetch("k", 1_000, func() (any, error) {
		return "new-payload", nil
	})
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.False(t, stale)
	assert.Equal(t, "new-payload", data)
}

func TestCache_GetOrFetch_FallsBackToStaleEntryWhenRefetchFails(t *testing.T) {
	c := New(10, 60_000)
	c.Put("k", "old-payload", time.Now().Add(-10*time.Second))

	data, fromCache, stale, err := c.GetOrFetch("k", 1_000, func() (any, error) {
		return nil, errors.New("upstream unavailable")
	})
	require.NoError(t, err, "a stale cached entry must be served, not the refetch error")
	assert.True(t, fromCache)
	assert.True(t, stale)
	assert.Equal(t, "old-payload", data)
}

func TestCache_GetOrFetch_ZeroMaxStalenessNeverFallsBackToStaleEntry(t *testing.T) {
	c := New(10, 60_000)
	c.Put("k", "old-payload", time.Now())
	wantErr := errors.New("rate limit exhausted")

	_, fromCache, stale, err := c.GetOrFetch("k", 0, func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr, "max_staleness_ms=0 must surface the fetch error with no partial result")
	assert.False(t, fromCache)
	assert.False(t, stale)
}
