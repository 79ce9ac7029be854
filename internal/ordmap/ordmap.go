// Package ordmap provides ordered-associative-container and
// intrusive-list primitives. The container set is small (tens of
// nodes/edges/subnets at the target scale) so a sorted slice with
// binary search is used instead of a balanced tree: the simplest
// implementation that satisfies the ordering and predecessor/successor
// contract the routing core needs.
package ordmap

import "sort"

// Map is an ordered associative container keyed by K, comparable with
// less, holding values V. Zero value is not usable; use New.
type Map[K any, V any] struct {
	less  func(a, b K) bool
	equal func(a, b K) bool
	keys  []K
	vals  []V
}

// New creates an empty Map ordered by less, with key equality equal.
func New[K any, V any](less func(a, b K) bool, equal func(a, b K) bool) *Map[K, V] {
	return &Map[K, V]{less: less, equal: equal}
}

func (m *Map[K, V]) search(k K) (idx int, found bool) {
	idx = sort.Search(len(m.keys), func(i int) bool { return !m.less(m.keys[i], k) })
	if idx < len(m.keys) && m.equal(m.keys[idx], k) {
		return idx, true
	}
	return idx, false
}

// Insert adds or overwrites the value for k, returning the previous value
// (if any) and whether it existed.
func (m *Map[K, V]) Insert(k K, v V) (prev V, existed bool) {
	idx, found := m.search(k)
	if found {
		prev = m.vals[idx]
		m.vals[idx] = v
		return prev, true
	}
	m.keys = append(m.keys, k)
	copy(m.keys[idx+1:], m.keys[idx:])
	m.keys[idx] = k
	m.vals = append(m.vals, v)
	copy(m.vals[idx+1:], m.vals[idx:])
	m.vals[idx] = v
	return prev, false
}

// Remove deletes k, returning its value and whether it was present.
func (m *Map[K, V]) Remove(k K) (V, bool) {
	var zero V
	idx, found := m.search(k)
	if !found {
		return zero, false
	}
	v := m.vals[idx]
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	m.vals = append(m.vals[:idx], m.vals[idx+1:]...)
	return v, true
}

// Get returns the value for k and whether it was found.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var zero V
	idx, found := m.search(k)
	if !found {
		return zero, false
	}
	return m.vals[idx], true
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return len(m.keys) }

// Floor returns the greatest key <= k (closest-smaller-or-equal).
func (m *Map[K, V]) Floor(k K) (K, V, bool) {
	idx, found := m.search(k)
	if found {
		return m.keys[idx], m.vals[idx], true
	}
	idx--
	if idx < 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	return m.keys[idx], m.vals[idx], true
}

// Ceiling returns the smallest key >= k (closest-greater-or-equal).
func (m *Map[K, V]) Ceiling(k K) (K, V, bool) {
	idx, _ := m.search(k)
	if idx >= len(m.keys) {
		var zk K
		var zv V
		return zk, zv, false
	}
	return m.keys[idx], m.vals[idx], true
}

// Predecessor returns the greatest key strictly less than k.
func (m *Map[K, V]) Predecessor(k K) (K, V, bool) {
	idx, _ := m.search(k)
	idx--
	if idx < 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	return m.keys[idx], m.vals[idx], true
}

// Successor returns the smallest key strictly greater than k.
func (m *Map[K, V]) Successor(k K) (K, V, bool) {
	idx, found := m.search(k)
	if found {
		idx++
	}
	if idx >= len(m.keys) {
		var zk K
		var zv V
		return zk, zv, false
	}
	return m.keys[idx], m.vals[idx], true
}

// First returns the smallest key, if any.
func (m *Map[K, V]) First() (K, V, bool) {
	if len(m.keys) == 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	return m.keys[0], m.vals[0], true
}

// Last returns the largest key, if any.
func (m *Map[K, V]) Last() (K, V, bool) {
	if len(m.keys) == 0 {
		var zk K
		var zv V
		return zk, zv, false
	}
	n := len(m.keys) - 1
	return m.keys[n], m.vals[n], true
}

// Each calls fn for every entry in ascending key order. fn's argument is a
// snapshot of the key/value at the time of the call, so it is safe for fn
// to call Remove(k) on the current key; the traversal order is computed
// from a snapshot of the key set taken before iteration starts, which is
// what makes that safe.
func (m *Map[K, V]) Each(fn func(k K, v V)) {
	keys := make([]K, len(m.keys))
	copy(keys, m.keys)
	for _, k := range keys {
		if v, ok := m.Get(k); ok {
			fn(k, v)
		}
	}
}
