package service

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key    uint64
	result rule.Result
	prev   *lruEntry
	next   *lruEntry
}

// ResultCache provides bounded LRU caching for expression rule results.
// Thread-safe with Mutex (both Get and Put mutate LRU order). Only results
// of expression rules that do not read the context timestamp are cached:
// for those, the outcome is a pure function of the rule version and the
// remaining evaluation context.
type ResultCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

// NewResultCache creates a new LRU cache with the given max size.
func NewResultCache(maxSize int) *ResultCache {
	return &ResultCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached result. Returns (result, true) on hit.
// On hit, the entry is promoted to the head (most recently used).
func (c *ResultCache) Get(key uint64) (rule.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.result, true
	}
	return rule.Result{}, false
}

// Put stores a result. If at capacity, the least recently used entry is evicted.
func (c *ResultCache) Put(key uint64, result rule.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = result
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, result: result}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called on any registry mutation, since cached
// results may reference removed or re-enabled rules.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

// Size returns current cache size.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToHeadLocked moves an existing entry to the head. Must be called with lock held.
func (c *ResultCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

// pushHeadLocked inserts an entry at the head. Must be called with lock held.
func (c *ResultCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlinkLocked removes an entry from the linked list. Must be called with lock held.
func (c *ResultCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictTailLocked removes the least recently used entry. Must be called with lock held.
func (c *ResultCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeCacheKey generates a unique hash for one rule evaluation: rule id
// and version plus the context identifiers and variables (serialized as
// JSON for determinism, map keys sorted). The context timestamp is
// excluded: rules that read it never reach the cache.
func computeCacheKey(ruleID string, version int, rc *rule.Context) uint64 {
	h := xxhash.New()

	_, _ = h.WriteString(ruleID)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(strconv.Itoa(version))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(rc.UserID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(rc.SessionID)
	_, _ = h.Write([]byte{0})

	if len(rc.Variables) > 0 {
		keys := make([]string, 0, len(rc.Variables))
		for k := range rc.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.WriteString(k)
			_, _ = h.Write([]byte{0})
			valJSON, _ := json.Marshal(rc.Variables[k])
			_, _ = h.Write(valJSON)
			_, _ = h.Write([]byte{0})
		}
	}

	return h.Sum64()
}
