package cache

import "errors"

// ErrIndexNotFound is returned when querying a non-existent index.
var ErrIndexNotFound = errors.New("index not found")

// Cache defines the basic interface for a generic in-memory cache.
type Cache[K comparable, V any] interface {
	// Set adds or updates an item in the cache.
	Set(key K, value V)
	// Get retrieves an item from the cache.
	Get(key K) (V, bool)
	// Del removes an item from the cache.
	Del(key K)
	// Len returns the number of items in the cache.
	Len() int
	// Keys returns all keys in the cache.
	Keys() []K
	// Clear removes all items from the cache.
	Clear()
}

// Store extends Cache with secondary-index and scan capabilities.
type Store[K comparable, V any] interface {
	Cache[K, V]

	// AddIndex registers a new secondary index.
	AddIndex(name string, extractor func(V) any)

	// Find retrieves items matching the index criteria.
	Find(indexName string, indexValue any) ([]V, error)

	// CountBy returns the number of items per index value.
	CountBy(indexName string) (map[any]int, error)

	// Filter scans the cache and returns items matching the predicate.
	Filter(predicate func(V) bool) []V

	// DeleteFunc removes all items matching the predicate and returns
	// the number of removed items.
	DeleteFunc(predicate func(K, V) bool) int
}
