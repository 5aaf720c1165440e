package cache

import (
	"sync"
)

// MemoryCache implements a thread-safe in-memory cache with secondary
// index support. Indexes map an extracted value (for example a category)
// to the set of keys carrying that value, so grouped lookups and counts
// avoid a full scan.
type MemoryCache[K comparable, V any] struct {
	mu sync.RWMutex

	// data stores the primary key-value pairs
	data map[K]V

	// extractors stores functions to extract index values from items
	extractors map[string]func(V) any

	// indices stores the index data: indexName -> indexValue -> set of keys
	indices map[string]map[any]map[K]struct{}
}

// Compile-time check that MemoryCache implements Store.
var _ Store[string, any] = (*MemoryCache[string, any])(nil)

// NewMemoryCache creates a new instance of MemoryCache.
func NewMemoryCache[K comparable, V any]() *MemoryCache[K, V] {
	return &MemoryCache[K, V]{
		data:       make(map[K]V),
		extractors: make(map[string]func(V) any),
		indices:    make(map[string]map[any]map[K]struct{}),
	}
}

// Set adds or updates an item in the cache.
func (c *MemoryCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If key exists, old index entries must be removed first
	if oldValue, exists := c.data[key]; exists {
		c.removeFromIndexes(key, oldValue)
	}

	c.data[key] = value
	c.addToIndexes(key, value)
}

// Get retrieves an item from the cache.
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.data[key]
	return val, ok
}

// Del removes an item from the cache.
func (c *MemoryCache[K, V]) Del(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldValue, exists := c.data[key]; exists {
		c.removeFromIndexes(key, oldValue)
		delete(c.data, key)
	}
}

// Len returns the number of items in the cache.
func (c *MemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Keys returns all keys in the cache.
func (c *MemoryCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all items from the cache.
func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]V)
	// Re-initialize indices structure but keep extractors
	c.indices = make(map[string]map[any]map[K]struct{})
	for name := range c.extractors {
		c.indices[name] = make(map[any]map[K]struct{})
	}
}

// AddIndex registers a new secondary index.
func (c *MemoryCache[K, V]) AddIndex(name string, extractor func(V) any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.extractors[name] = extractor
	c.indices[name] = make(map[any]map[K]struct{})

	// Re-index existing data
	for k, v := range c.data {
		c.addIndexEntry(name, extractor(v), k)
	}
}

// Find retrieves items matching the index criteria.
func (c *MemoryCache[K, V]) Find(indexName string, indexValue any) ([]V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.extractors[indexName]; !ok {
		return nil, ErrIndexNotFound
	}

	keySet, ok := c.indices[indexName][indexValue]
	if !ok {
		return []V{}, nil
	}

	results := make([]V, 0, len(keySet))
	for k := range keySet {
		if val, exists := c.data[k]; exists {
			results = append(results, val)
		}
	}

	return results, nil
}

// CountBy returns the number of items per index value.
func (c *MemoryCache[K, V]) CountBy(indexName string) (map[any]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.extractors[indexName]; !ok {
		return nil, ErrIndexNotFound
	}

	counts := make(map[any]int, len(c.indices[indexName]))
	for val, keySet := range c.indices[indexName] {
		counts[val] = len(keySet)
	}
	return counts, nil
}

// Filter scans the cache and returns items matching the predicate.
func (c *MemoryCache[K, V]) Filter(predicate func(V) bool) []V {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []V
	for _, v := range c.data {
		if predicate(v) {
			results = append(results, v)
		}
	}
	return results
}

// DeleteFunc removes all items matching the predicate and returns the
// number of removed items.
func (c *MemoryCache[K, V]) DeleteFunc(predicate func(K, V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, v := range c.data {
		if predicate(k, v) {
			c.removeFromIndexes(k, v)
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Internal helper methods (assume lock is held)

func (c *MemoryCache[K, V]) addToIndexes(key K, value V) {
	for name, extractor := range c.extractors {
		c.addIndexEntry(name, extractor(value), key)
	}
}

func (c *MemoryCache[K, V]) removeFromIndexes(key K, value V) {
	for name, extractor := range c.extractors {
		c.removeIndexEntry(name, extractor(value), key)
	}
}

func (c *MemoryCache[K, V]) addIndexEntry(indexName string, indexValue any, key K) {
	index, ok := c.indices[indexName]
	if !ok {
		index = make(map[any]map[K]struct{})
		c.indices[indexName] = index
	}

	keySet, ok := index[indexValue]
	if !ok {
		keySet = make(map[K]struct{})
		index[indexValue] = keySet
	}
	keySet[key] = struct{}{}
}

func (c *MemoryCache[K, V]) removeIndexEntry(indexName string, indexValue any, key K) {
	if index, ok := c.indices[indexName]; ok {
		if keySet, ok := index[indexValue]; ok {
			delete(keySet, key)
			// Cleanup empty maps to save memory
			if len(keySet) == 0 {
				delete(index, indexValue)
			}
		}
	}
}
