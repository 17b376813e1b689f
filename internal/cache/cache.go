// Package cache implements the Freshness Cache: a per-(tenant, source,
// table, filter-set) keyed store of previously-fetched rowsets, with
// single-flight coalescing of concurrent misses and LRU eviction.
//
// Grounded on original_source/prototype/cache/freshness.py's CacheEntry/
// FreshnessCache shape, translated to use golang.org/x/sync/singleflight for
// miss coalescing in place of the prototype's plain threading.Lock (the
// teacher imports golang.org/x/sync already but, before this package, only
// for errgroup — this is the tree's first singleflight consumer).
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is one cached rowset plus the instant it was fetched.
type Entry struct {
	Data      any
	FetchedAt time.Time
}

// AgeMS reports how old the entry is, in milliseconds, as of now.
func (e Entry) AgeMS(now time.Time) int64 {
	return now.Sub(e.FetchedAt).Milliseconds()
}

// IsFresh reports whether the entry satisfies a caller's max-staleness
// requirement. maxStalenessMS == 0 means "no cached value is ever fresh
// enough" — callers must always fetch live data, though the cache still
// writes back afterward (see REDESIGN FLAGS in SPEC_FULL.md).
func (e Entry) IsFresh(maxStalenessMS int64, now time.Time) bool {
	if maxStalenessMS <= 0 {
		return false
	}
	return e.AgeMS(now) <= maxStalenessMS
}

type node struct {
	key   string
	entry Entry
}

// Cache is a freshness-aware, LRU-bounded, single-flight-coalescing rowset
// cache. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	hardTTLMS  int64 // entries older than this are never served, regardless of max_staleness_ms

	group singleflight.Group

	hits   int64
	misses int64
}

// New creates a Cache bounded to maxEntries, with a hard staleness ceiling
// of hardTTLMS independent of any caller's max_staleness_ms (spec.md's
// "cache never serves data older than its own hard TTL" invariant).
func New(maxEntries int, hardTTLMS int64) *Cache {
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		hardTTLMS:  hardTTLMS,
	}
}

// Key builds the canonical cache key for a (tenant, source, table, filters)
// tuple: filters are sorted by field name before hashing so filter map
// iteration order never affects the key, matching the prototype's
// sorted(filters.items()) behavior.
func Key(tenantID, sourceID, table string, filters map[string]any) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(table))
	h.Write([]byte{0})

	names := make([]string, 0, len(filters))
	for k := range filters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		b, _ := json.Marshal(filters[k])
		h.Write(b)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached entry for key if present and not past the hard TTL.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	n := el.Value.(*node)
	if c.hardTTLMS > 0 && n.entry.AgeMS(time.Now()) > c.hardTTLMS {
		c.removeLocked(el)
		c.misses++
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return n.entry, true
}

// Put stores data under key, fetched now, always overwriting any existing
// entry (the base design writes back on every fetch regardless of
// max_staleness_ms — see REDESIGN FLAGS).
func (c *Cache) Put(key string, data any, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{Data: data, FetchedAt: fetchedAt}
	if el, ok := c.entries[key]; ok {
		el.Value.(*node).entry = entry
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&node{key: key, entry: entry})
	c.entries[key] = el

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	n := el.Value.(*node)
	delete(c.entries, n.key)
	c.order.Remove(el)
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// GetOrFetch implements the freshness contract of spec.md §4.3: an entry is
// only served from cache when it satisfies maxStalenessMS (IsFresh);
// maxStalenessMS <= 0 means "always fetch live" and bypasses the cache read
// entirely (a successful fetch still writes back for later callers). When a
// live fetch is required and it fails, a cached entry that exists but is
// older than the caller asked for is served anyway with stale=true — the
// caller is responsible for surfacing that as a STALE_DATA warning — unless
// maxStalenessMS <= 0, in which case there is no fallback and the fetch
// error propagates directly.
//
// Concurrent misses for the same key coalesce into one upstream fetch via
// golang.org/x/sync/singleflight; followers share its result.
func (c *Cache) GetOrFetch(key string, maxStalenessMS int64, fetch func() (any, error)) (data any, fromCache bool, stale bool, err error) {
	now := time.Now()
	if maxStalenessMS > 0 {
		if entry, ok := c.Get(key); ok && entry.IsFresh(maxStalenessMS, now) {
			return entry.Data, true, false, nil
		}
	}

	v, ferr, _ := c.group.Do(key, func() (any, error) {
		d, err := fetch()
		if err != nil {
			return nil, err
		}
		c.Put(key, d, time.Now())
		return d, nil
	})
	if ferr == nil {
		return v, false, false, nil
	}

	if maxStalenessMS > 0 {
		if entry, ok := c.Get(key); ok {
			return entry.Data, true, true, nil
		}
	}
	return nil, false, false, ferr
}

// Stats reports cumulative hit/miss counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// Stats returns the cache's current statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.order.Len()}
}
