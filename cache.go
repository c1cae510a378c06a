package mdpreview

import (
	"sync"
	"sync/atomic"
)

const (
	// cacheShards spreads lock contention across independent LRU lists.
	// Fingerprints pick their shard by low bits, so it must stay a power
	// of two.
	cacheShards = 16

	// DefaultCacheCapacity bounds total cached fragment bytes.
	DefaultCacheCapacity int64 = 32 << 20
)

// cacheEntry is a doubly-linked list node holding one rendered fragment.
type cacheEntry struct {
	key  Fingerprint
	html string
	size int64
	prev *cacheEntry
	next *cacheEntry
}

// cacheShard is one independently locked LRU list plus its index map.
type cacheShard struct {
	mu       sync.Mutex
	entries  map[Fingerprint]*cacheEntry
	head     *cacheEntry // most recently used
	tail     *cacheEntry // least recently used
	maxBytes int64
	curBytes int64
}

// BlockCache memoizes rendered fragments by content fingerprint. Rendering
// is deterministic per fingerprint, so entries are inserted once and never
// updated in place; Put on an existing key only refreshes recency. Total
// size is bounded; eviction is strict LRU per shard. Safe for concurrent
// use by all workers.
type BlockCache struct {
	shards [cacheShards]cacheShard

	// Metrics (atomic for lock-free reads).
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	corrupted atomic.Uint64
}

// NewBlockCache creates a cache bounded to capacity bytes, divided evenly
// across shards. Non-positive capacity falls back to DefaultCacheCapacity.
func NewBlockCache(capacity int64) *BlockCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	perShard := capacity / cacheShards
	if perShard < 1 {
		perShard = 1
	}

	c := &BlockCache{}
	for i := range c.shards {
		c.shards[i] = cacheShard{
			entries:  make(map[Fingerprint]*cacheEntry),
			maxBytes: perShard,
		}
	}
	return c
}

func (c *BlockCache) shard(fp Fingerprint) *cacheShard {
	return &c.shards[fp&(cacheShards-1)]
}

// Get returns the cached fragment for fp and refreshes its recency.
func (c *BlockCache) Get(fp Fingerprint) (string, bool) {
	s := c.shard(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[fp]
	if !ok {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	s.moveToFront(ent)
	return ent.html, true
}

// Put inserts a rendered fragment. Idempotent: re-inserting an existing
// fingerprint refreshes recency and replaces nothing (content is identical
// by construction). Fragments larger than a whole shard are skipped.
// Eviction runs opportunistically until the shard is back under capacity.
func (c *BlockCache) Put(fp Fingerprint, html string) {
	size := int64(len(html))
	s := c.shard(fp)

	if size > s.maxBytes {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[fp]; ok {
		s.moveToFront(ent)
		return
	}

	for s.curBytes+size > s.maxBytes && s.tail != nil {
		s.evictTail()
		c.evictions.Add(1)
	}

	if s.curBytes < 0 || s.curBytes+size > s.maxBytes {
		// Accounting drifted: fatal for this shard only. Drop it wholesale
		// and let the next cycle rebuild.
		s.reset()
		c.corrupted.Add(1)
	}

	ent := &cacheEntry{key: fp, html: html, size: size}
	s.entries[fp] = ent
	s.curBytes += size
	s.addToFront(ent)
}

// Len returns the total number of cached fragments.
func (c *BlockCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *BlockCache) Stats() CacheStats {
	st := CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		st.Bytes += s.curBytes
		st.Entries += len(s.entries)
		s.mu.Unlock()
	}
	return st
}

// Clear drops every cached fragment. Counters are kept.
func (c *BlockCache) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.reset()
		s.mu.Unlock()
	}
}

// corruptionCount reports how many shard resets accounting drift forced.
func (c *BlockCache) corruptionCount() uint64 {
	return c.corrupted.Load()
}

// evictTail removes the least recently used entry. Callers hold s.mu.
func (s *cacheShard) evictTail() {
	victim := s.tail
	if victim == nil {
		return
	}
	s.removeFromList(victim)
	delete(s.entries, victim.key)
	s.curBytes -= victim.size
}

// reset drops all entries of the shard. Callers hold s.mu.
func (s *cacheShard) reset() {
	s.entries = make(map[Fingerprint]*cacheEntry)
	s.head = nil
	s.tail = nil
	s.curBytes = 0
}

// moveToFront moves an entry to the head of the LRU list.
func (s *cacheShard) moveToFront(ent *cacheEntry) {
	if ent == s.head {
		return
	}
	s.removeFromList(ent)
	s.addToFront(ent)
}

// addToFront adds an entry at the head of the LRU list.
func (s *cacheShard) addToFront(ent *cacheEntry) {
	ent.prev = nil
	ent.next = s.head
	if s.head != nil {
		s.head.prev = ent
	}
	s.head = ent
	if s.tail == nil {
		s.tail = ent
	}
}

// removeFromList unlinks an entry from the LRU list.
func (s *cacheShard) removeFromList(ent *cacheEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		s.head = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		s.tail = ent.prev
	}
}
