// Package sync provides generic wrappers around the standard sync primitives.
package sync

import "sync"

// TypedSyncMap is a sync.Map restricted to keys of type K and values of type V.
// The zero value is ready for use.
type TypedSyncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *TypedSyncMap[K, V]) Load(key K) (V, bool) {
	var zero V
	v, ok := m.m.Load(key)
	if !ok {
		return zero, false
	}

	typed, ok := v.(V)
	if !ok {
		return zero, false
	}

	return typed, true
}

func (m *TypedSyncMap[K, V]) Store(key K, value V) { m.m.Store(key, value) }

// LoadOrStore returns the existing value for the key if present. Otherwise,
// it stores and returns the value given. The loaded result is true if the
// value was already present.
func (m *TypedSyncMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := m.m.LoadOrStore(key, value)
	typed, _ := actual.(V)
	return typed, loaded
}
