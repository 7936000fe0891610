// Package keyedmap provides a generic concurrent map with per-key
// locking, generalized from go.ref's mounttable node tree (itself guarded
// by a single sync.RWMutex over the whole tree). Here every key gets its
// own mutex, so operations on different keys never wait on each other's
// key lock; a shared index mutex is held only long enough to find or
// create a key's entry. Operations on the same key, reads included, are
// serialized by that key's mutex: concurrent Loads of one key do not run
// in parallel. Writers only ever hold the key-local guard for the
// duration of a single mutation, never across awaits — callers must not
// call into another subsystem (an RPC, a channel receive) from inside the
// function passed to Update.
package keyedmap

import "sync"

type entry[V any] struct {
	mu    sync.Mutex
	value V
	ok    bool
}

// Map is a concurrent map[K]V with per-key locking.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// New creates an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]*entry[V])}
}

func (m *Map[K, V]) entryFor(key K) *entry[V] {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry[V]{}
		m.entries[key] = e
	}
	m.mu.Unlock()
	return e
}

// Load returns the value stored for key, if any.
func (m *Map[K, V]) Load(key K) (V, bool) {
	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.ok
}

// Store sets the value for key.
func (m *Map[K, V]) Store(key K, value V) {
	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value, e.ok = value, true
}

// Delete removes key, reporting whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.ok
	var zero V
	e.value, e.ok = zero, false
	return was
}

// Update atomically reads and rewrites the value for key under the
// key-local lock. fn receives the current value (zero value and ok=false
// if absent) and returns the new value plus whether it should be stored
// (returning ok=false deletes the key). fn MUST NOT block on anything
// other than CPU-bound work — no channel receive, no RPC, no further
// keyedmap call — per the no-lock-across-suspension invariant (spec §5).
func (m *Map[K, V]) Update(key K, fn func(value V, ok bool) (newValue V, store bool)) (V, bool) {
	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	newValue, store := fn(e.value, e.ok)
	if store {
		e.value, e.ok = newValue, true
	} else {
		var zero V
		e.value, e.ok = zero, false
	}
	return e.value, e.ok
}

// Keys returns a snapshot of all keys currently marked present. Snapshot
// only: entries may be added or removed concurrently with the read.
func (m *Map[K, V]) Keys() []K {
	m.mu.Lock()
	all := make([]*struct {
		k K
		e *entry[V]
	}, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, &struct {
			k K
			e *entry[V]
		}{k, e})
	}
	m.mu.Unlock()

	keys := make([]K, 0, len(all))
	for _, kv := range all {
		kv.e.mu.Lock()
		if kv.e.ok {
			keys = append(keys, kv.k)
		}
		kv.e.mu.Unlock()
	}
	return keys
}
