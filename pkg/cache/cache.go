// Package cache provides a bounded in-memory key-value cache with least
// recently used eviction. Lookup, insertion, promotion and eviction are
// all O(1): a hashmap locates entries and an explicit doubly-linked list
// tracks recency.
package cache

import "errors"

// ErrNegativeCapacity is returned by [New] when given a capacity below zero.
var ErrNegativeCapacity = errors.New("cache: capacity must not be negative")

// Stats is a snapshot of a cache's runtime counters. Counters are updated
// under the cache lock, so a snapshot is always internally consistent.
type Stats struct {
	// Hits counts Get calls that found their key.
	Hits uint64
	// Misses counts Get calls that did not.
	Misses uint64
	// Evictions counts entries removed to satisfy the capacity limit.
	// Delete, RemoveOldest and Purge are not evictions.
	Evictions uint64
}

// Cache is a bounded key-value store that evicts the least recently used
// entry when a new key would exceed its capacity.
type Cache[K comparable, V any] interface {
	// Get retrieves a value by key and marks it as most recently used.
	Get(key K) (V, bool)
	// Put adds or updates a key-value pair and marks it as most recently
	// used, evicting the least recently used entry if the cache is full.
	Put(key K, value V)
	// Peek retrieves a value by key without updating its recency.
	Peek(key K) (V, bool)
	// Contains reports whether the key is present without updating its recency.
	Contains(key K) bool
	// Delete removes a key-value pair by key. Returns true if the key was found and deleted, false otherwise.
	Delete(key K) bool
	// RemoveOldest removes and returns the current eviction candidate.
	RemoveOldest() (K, V, bool)
	// Keys returns the cached keys ordered from most to least recently used.
	Keys() []K
	// Len returns the current number of entries in the cache.
	Len() int
	// Capacity returns the maximum number of entries the cache can hold.
	Capacity() int
	// Purge removes all entries from the cache.
	Purge()
	// Stats returns a snapshot of the cache's hit, miss and eviction counters.
	Stats() Stats
}
