package gatekeeper

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
)

// nonWord strips everything that is not a letter, digit, or underscore
// before an utterance is used as a cache key, so spacing and punctuation
// variants of the same sentence hit the same entry.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]`)

// NormalizeKey canonicalizes an utterance into its cache key.
func NormalizeKey(text string) string {
	return strings.ToLower(nonWord.ReplaceAllString(text, ""))
}

// Cache is a fixed-capacity LRU of normalized utterance → routing decision.
// Get and Set both touch the entry; touch+get is atomic so eviction order
// holds under concurrent routing.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value Decision
}

// NewCache creates an LRU cache with the given capacity.
func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Get looks up the decision for an utterance and marks it most recently
// used.
func (c *Cache) Get(text string) (Decision, bool) {
	key := NormalizeKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).value, true
}

// Set stores the decision for an utterance, evicting the least recently
// touched entry when the cache is full.
func (c *Cache) Set(text string, d Decision) {
	key := NormalizeKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).value = d
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: d})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
