package collections

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// VecMap is a map backed by a slice of entries. Lookups scan the slice, so it only suits small
// collections. Entries keep their insertion order.
type VecMap[K comparable, V any] struct {
	entries []entry[K, V]
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Insert sets the value for key, replacing the existing one in place.
func (m *VecMap[K, V]) Insert(key K, value V) {
	if i := m.index(key); i >= 0 {
		m.entries[i].value = value
		return
	}
	m.entries = append(m.entries, entry[K, V]{key: key, value: value})
}

func (m *VecMap[K, V]) Get(key K) (value V, ok bool) {
	if i := m.index(key); i >= 0 {
		return m.entries[i].value, true
	}
	return value, false
}

// Remove deletes key and returns its value.
func (m *VecMap[K, V]) Remove(key K) (value V, ok bool) {
	i := m.index(key)
	if i < 0 {
		return value, false
	}
	value = m.entries[i].value
	m.entries = slices.Delete(m.entries, i, i+1)
	return value, true
}

func (m *VecMap[K, V]) ContainsKey(key K) bool {
	return m.index(key) >= 0
}

func (m *VecMap[K, V]) Len() int {
	return len(m.entries)
}

func (m *VecMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range m.entries {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

func (m *VecMap[K, V]) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v: %v", e.key, e.value)
	}
	sb.WriteByte('}')
	return sb.String()
}

func (m *VecMap[K, V]) index(key K) int {
	return slices.IndexFunc(m.entries, func(e entry[K, V]) bool {
		return e.key == key
	})
}
