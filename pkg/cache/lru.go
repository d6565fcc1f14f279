package cache

import (
	"sync"
)

type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// LRUCache implements a Least Recently Used (LRU) cache using a DLL and a
// hashmap and capacity limit.
//
// The recency list is kept explicit: sentinel head and tail nodes bracket
// the entries, the node after head is the most recently used entry and the
// node before tail is the next eviction candidate. The hashmap gives O(1)
// lookup of a node, and unlinking/relinking nodes gives O(1) promotion and
// eviction. Capacity is fixed for the cache's lifetime; there is no
// resizing or rehashing beyond what the hashmap does internally.
type LRUCache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	hashMap  map[K]*node[K, V]
	head     *node[K, V]
	tail     *node[K, V]
	onEvict  func(key K, value V)
	stats    Stats
}

var _ Cache[string, []byte] = (*LRUCache[string, []byte])(nil)

// Option configures an LRUCache at construction time.
type Option[K comparable, V any] func(*LRUCache[K, V])

// WithEvictCallback registers fn to be called with every entry removed by
// capacity eviction. It is not called for Delete, RemoveOldest or Purge.
// fn runs while the cache lock is held and must not call back into the cache.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(l *LRUCache[K, V]) {
		l.onEvict = fn
	}
}

// New creates an LRUCache that holds at most capacity entries. A negative
// capacity fails with [ErrNegativeCapacity]. A capacity of zero is legal:
// the cache stays permanently empty and every Put is a no-op.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) (*LRUCache[K, V], error) {
	if capacity < 0 {
		return nil, ErrNegativeCapacity
	}
	lru := &LRUCache[K, V]{
		capacity: capacity,
		hashMap:  make(map[K]*node[K, V], capacity),
		head:     &node[K, V]{},
		tail:     &node[K, V]{},
	}
	lru.head.next = lru.tail
	lru.tail.prev = lru.head
	for _, opt := range opts {
		opt(lru)
	}
	return lru, nil
}

// unlink removes n from the recency list. n must be a live entry node.
func (l *LRUCache[K, V]) unlink(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// pushFront links n in directly after the head sentinel, making it the
// most recently used entry.
func (l *LRUCache[K, V]) pushFront(n *node[K, V]) {
	n.next = l.head.next
	n.prev = l.head

	l.head.next.prev = n
	l.head.next = n
}

// Get implements [Cache].
func (l *LRUCache[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n, exists := l.hashMap[key]; exists {
		l.unlink(n)
		l.pushFront(n)
		l.stats.Hits++
		return n.value, true
	}
	l.stats.Misses++
	var zero V
	return zero, false
}

// Put implements [Cache].
func (l *LRUCache[K, V]) Put(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity == 0 {
		return
	}
	if n, exists := l.hashMap[key]; exists {
		n.value = value
		l.unlink(n)
		l.pushFront(n)
		return
	}
	if len(l.hashMap) >= l.capacity {
		// evict least recently used entry
		lru := l.tail.prev
		l.unlink(lru)
		delete(l.hashMap, lru.key)
		l.stats.Evictions++
		if l.onEvict != nil {
			l.onEvict(lru.key, lru.value)
		}
	}
	n := &node[K, V]{
		key:   key,
		value: value,
	}
	l.pushFront(n)
	l.hashMap[key] = n
}

// Peek implements [Cache].
func (l *LRUCache[K, V]) Peek(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n, exists := l.hashMap[key]; exists {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Contains implements [Cache].
func (l *LRUCache[K, V]) Contains(key K) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.hashMap[key]
	return exists
}

// Delete implements [Cache].
func (l *LRUCache[K, V]) Delete(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, exists := l.hashMap[key]
	if !exists {
		return false
	}
	l.unlink(n)
	delete(l.hashMap, key)
	return true
}

// RemoveOldest implements [Cache].
func (l *LRUCache[K, V]) RemoveOldest() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lru := l.tail.prev
	if lru == l.head {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	l.unlink(lru)
	delete(l.hashMap, lru.key)
	return lru.key, lru.value, true
}

// Keys implements [Cache]. Keys are returned from most to least recently
// used, so the last key is the next eviction candidate.
func (l *LRUCache[K, V]) Keys() []K {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]K, 0, len(l.hashMap))
	for n := l.head.next; n != l.tail; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Len implements [Cache].
func (l *LRUCache[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.hashMap)
}

// Capacity implements [Cache].
func (l *LRUCache[K, V]) Capacity() int {
	return l.capacity
}

// Purge implements [Cache]. Stats survive a purge.
func (l *LRUCache[K, V]) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.hashMap)
	l.head.next = l.tail
	l.tail.prev = l.head
}

// Stats implements [Cache].
func (l *LRUCache[K, V]) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Snapshot returns the counters and the current entry count under a single
// lock acquisition, so the pair describes one moment in time. Separate
// Stats and Len calls can interleave with a mutation.
func (l *LRUCache[K, V]) Snapshot() (Stats, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats, len(l.hashMap)
}
