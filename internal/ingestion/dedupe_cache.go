package ingestion

import (
	"container/list"
	"context"
)

// CachedDeduper layers an in-memory LRU over a backing Deduper so that
// recently seen command IDs are rejected without a Postgres round trip.
// Not thread-safe — only accessed from the dispatcher goroutine.
type CachedDeduper struct {
	lru     *dedupeLRU
	backing Deduper
}

func NewCachedDeduper(capacity int, backing Deduper) *CachedDeduper {
	return &CachedDeduper{
		lru:     newDedupeLRU(capacity),
		backing: backing,
	}
}

// Seen checks the LRU first, falling back to the backing store. Backing hits
// are promoted into the LRU so redeliveries after the first lookup stay hot.
func (c *CachedDeduper) Seen(ctx context.Context, commandID string) (bool, error) {
	if c.lru.Contains(commandID) {
		return true, nil
	}

	seen, err := c.backing.Seen(ctx, commandID)
	if err != nil {
		return false, err
	}
	if seen {
		c.lru.Add(commandID)
	}
	return seen, nil
}

// MarkProcessed records the ID in the backing store and the LRU. The LRU is
// updated even when the backing write fails: a false duplicate on the hot
// path is safer than reprocessing.
func (c *CachedDeduper) MarkProcessed(ctx context.Context, commandID string) error {
	err := c.backing.MarkProcessed(ctx, commandID)
	c.lru.Add(commandID)
	return err
}

// Size returns the number of cached IDs.
func (c *CachedDeduper) Size() int {
	return c.lru.Size()
}

// --- LRU ---

type dedupeLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newDedupeLRU(capacity int) *dedupeLRU {
	return &dedupeLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front).
func (lru *dedupeLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists).
func (lru *dedupeLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *dedupeLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
	}
}

func (lru *dedupeLRU) Size() int {
	return lru.lruList.Len()
}
