// Package hashmap wraps orcaman/concurrent-map/v2 with a small,
// string-keyed generic façade, matching the shape the rest of this
// corpus uses for cross-goroutine maps.
package hashmap

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ConcurrentMap is a sharded map, each shard guarded by its own lock, safe
// for concurrent use from multiple goroutines without an external lock.
type ConcurrentMap[V any] struct {
	backend cmap.ConcurrentMap[string, V]
}

// New creates an empty ConcurrentMap.
func New[V any]() *ConcurrentMap[V] {
	return &ConcurrentMap[V]{backend: cmap.New[V]()}
}

func (m *ConcurrentMap[V]) Store(key string, val V) {
	m.backend.Set(key, val)
}

func (m *ConcurrentMap[V]) Load(key string) (val V, ok bool) {
	return m.backend.Get(key)
}

func (m *ConcurrentMap[V]) Delete(key string) {
	m.backend.Remove(key)
}

func (m *ConcurrentMap[V]) Len() int {
	return m.backend.Count()
}

// LoadOrStore stores val under key only if key is absent, returning the
// stored value and whether it was already present.
func (m *ConcurrentMap[V]) LoadOrStore(key string, val V) (actual V, loaded bool) {
	set := m.backend.SetIfAbsent(key, val)
	if set {
		return val, false
	}
	return m.Load(key)
}

func (m *ConcurrentMap[V]) Range(cb func(key string, val V) bool) {
	for item := range m.backend.IterBuffered() {
		if !cb(item.Key, item.Val) {
			return
		}
	}
}
