package cty

import (
	"container/list"
	"sync"
	"sync/atomic"
)

const DefaultCacheCapacity = 50000

// Resolver memoizes table lookups (hits and misses) keyed by the raw
// callsign, and counts lookups for stats reporting. It is safe for concurrent
// use.
type Resolver struct {
	table *Table
	cache *lookupCache // nil when caching is disabled

	totalLookups       atomic.Uint64
	cacheHits          atomic.Uint64
	validated          atomic.Uint64
	validatedFromCache atomic.Uint64
}

// LookupMetrics summarizes resolver behavior.
type LookupMetrics struct {
	TotalLookups       uint64
	CacheHits          uint64
	CacheEntries       uint64
	Validated          uint64
	ValidatedFromCache uint64
}

type cacheEntry struct {
	entity Entity
	ok     bool
}

// NewResolver wraps t with a lookup cache holding up to capacity callsigns.
// A capacity of zero or less disables caching; counters are still kept.
func NewResolver(t *Table, capacity int) *Resolver {
	r := &Resolver{table: t}
	if capacity > 0 {
		r.cache = newLookupCache(capacity)
	}
	return r
}

// Table returns the table the resolver reads from.
func (r *Resolver) Table() *Table {
	if r == nil {
		return nil
	}
	return r.table
}

// Lookup resolves callsign like Table.Lookup, consulting the cache first.
func (r *Resolver) Lookup(callsign string) (Entity, bool) {
	if r == nil {
		return Entity{}, false
	}
	r.totalLookups.Add(1)
	if entry, ok := r.cache.get(callsign); ok {
		r.cacheHits.Add(1)
		if entry.ok {
			r.validated.Add(1)
			r.validatedFromCache.Add(1)
		}
		return entry.entity, entry.ok
	}

	e, ok := r.table.Lookup(callsign)
	if ok {
		r.validated.Add(1)
	}
	r.cache.put(callsign, cacheEntry{entity: e, ok: ok})
	return e, ok
}

// lookupCache is a fixed-size map of recent results. order runs from most to
// least recently used; put drops from the back once size passes limit.
type lookupCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	index map[string]*list.Element
	size  atomic.Uint64
}

type cacheSlot struct {
	callsign string
	entry    cacheEntry
}

func newLookupCache(limit int) *lookupCache {
	return &lookupCache{
		limit: limit,
		order: list.New(),
		index: make(map[string]*list.Element, limit),
	}
}

func (c *lookupCache) get(callsign string) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[callsign]
	if !ok {
		return cacheEntry{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheSlot).entry, true
}

func (c *lookupCache) put(callsign string, entry cacheEntry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[callsign]; ok {
		el.Value.(*cacheSlot).entry = entry
		c.order.MoveToFront(el)
		return
	}
	c.index[callsign] = c.order.PushFront(&cacheSlot{callsign: callsign, entry: entry})
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheSlot).callsign)
	}
	c.size.Store(uint64(c.order.Len()))
}

func (c *lookupCache) entries() uint64 {
	if c == nil {
		return 0
	}
	return c.size.Load()
}

// Metrics returns a snapshot of lookup and cache counters.
func (r *Resolver) Metrics() LookupMetrics {
	if r == nil {
		return LookupMetrics{}
	}
	return LookupMetrics{
		TotalLookups:       r.totalLookups.Load(),
		CacheHits:          r.cacheHits.Load(),
		CacheEntries:       r.cache.entries(),
		Validated:          r.validated.Load(),
		ValidatedFromCache: r.validatedFromCache.Load(),
	}
}
