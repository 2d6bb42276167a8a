package buffer

import (
	"fmt"
	"iter"
	"slices"
)

var _ Buffer[any] = (*PreallocatedBuffer[any])(nil)

// PreallocatedBuffer is an append buffer that keeps its slots between batches.
//
// The buffer owns a store of slots and a logical length. Slots below the logical length are live,
// slots at or beyond it are stale and are overwritten by the next pushes. Clear only resets the
// logical length, so pushing up to the previous peak length after Clear allocates nothing.
//
// The buffer is not safe for concurrent use. Mutation belongs to a single goroutine; wrap the
// buffer with [Shared] if other goroutines need to read it.
type PreallocatedBuffer[Item any] struct {
	items   []Item
	back    int
	factory func() Item
}

// Preallocated returns a buffer with capacity slots, each filled by factory.
//
// The factory is called again every time the buffer has to grow, so it must be safe to call any
// number of times.
func Preallocated[Item any](capacity int, factory func() Item) *PreallocatedBuffer[Item] {
	if capacity < 0 {
		panic("capacity can't be < 0")
	}
	if factory == nil {
		panic("factory can't be nil")
	}
	b := &PreallocatedBuffer[Item]{
		items:   make([]Item, 0, capacity),
		factory: factory,
	}
	b.SetCapacity(capacity)
	return b
}

// Capacity returns the number of allocated slots, live or stale.
func (b *PreallocatedBuffer[Item]) Capacity() int {
	return len(b.items)
}

// SetCapacity resizes the store to n slots. New slots are filled by the factory.
//
// Shrinking is destructive: live items at index n and beyond are dropped and the length is
// clamped to n. Callers that must not lose items need to ensure Len() <= n beforehand.
func (b *PreallocatedBuffer[Item]) SetCapacity(n int) {
	if n < 0 {
		panic("capacity can't be < 0")
	}
	if n <= len(b.items) {
		clear(b.items[n:])
		b.items = b.items[:n]
		b.back = min(b.back, n)
		return
	}
	b.items = slices.Grow(b.items, n-len(b.items))
	for len(b.items) < n {
		b.items = append(b.items, b.factory())
	}
}

// Raw returns the whole store, including stale slots beyond Len. It is meant for diagnostics and
// shares memory with the buffer.
func (b *PreallocatedBuffer[Item]) Raw() []Item {
	return b.items
}

// Len returns the number of live items.
func (b *PreallocatedBuffer[Item]) Len() int {
	return b.back
}

// Clear drops all live items without touching the store.
func (b *PreallocatedBuffer[Item]) Clear() {
	b.back = 0
}

// Get returns the live item at index i.
func (b *PreallocatedBuffer[Item]) Get(i int) (item Item, ok bool) {
	if i < 0 || i >= b.back {
		return item, false
	}
	return b.items[i], true
}

// GetPtr returns a pointer to the live item at index i. The pointer is valid until the next call
// that changes the capacity.
func (b *PreallocatedBuffer[Item]) GetPtr(i int) (*Item, bool) {
	if i < 0 || i >= b.back {
		return nil, false
	}
	return &b.items[i], true
}

// Last returns the last live item.
func (b *PreallocatedBuffer[Item]) Last() (Item, bool) {
	return b.Get(b.back - 1)
}

// LastPtr returns a pointer to the last live item.
func (b *PreallocatedBuffer[Item]) LastPtr() (*Item, bool) {
	return b.GetPtr(b.back - 1)
}

// LastIndex returns the index of the last live item.
func (b *PreallocatedBuffer[Item]) LastIndex() (int, bool) {
	if b.back == 0 {
		return 0, false
	}
	return b.back - 1, true
}

// Push appends an item. A stale slot is overwritten if there is one, otherwise the store grows by
// one slot.
func (b *PreallocatedBuffer[Item]) Push(item Item) {
	if b.back < len(b.items) {
		b.items[b.back] = item
	} else {
		b.items = append(b.items, item)
	}
	b.back++
}

// PushInPlace appends an item built directly in the store.
//
// fill receives the next stale slot, or a fresh item from the factory if the buffer is full. The
// slot still holds whatever the previous batch left there. If fill returns false the push is
// aborted: the length is unchanged and any partial write stays in the stale slot, to be
// overwritten later. PushInPlace reports whether the item was appended.
func (b *PreallocatedBuffer[Item]) PushInPlace(fill func(item *Item) bool) bool {
	if fill == nil {
		panic("fill can't be nil")
	}
	if b.back < len(b.items) {
		if !fill(&b.items[b.back]) {
			return false
		}
	} else {
		item := b.factory()
		if !fill(&item) {
			return false
		}
		b.items = append(b.items, item)
	}
	b.back++
	return true
}

// Iter returns a sequence of the live items.
func (b *PreallocatedBuffer[Item]) Iter() iter.Seq[Item] {
	return slices.Values(b.items[:b.back])
}

// All returns a sequence of the live items with their indexes.
func (b *PreallocatedBuffer[Item]) All() iter.Seq2[int, Item] {
	return slices.All(b.items[:b.back])
}

// Derive returns an empty buffer with the same capacity and factory.
func (b *PreallocatedBuffer[Item]) Derive() Buffer[Item] {
	return Preallocated(len(b.items), b.factory)
}

// String renders the whole store, stale slots included.
func (b *PreallocatedBuffer[Item]) String() string {
	return fmt.Sprint(b.items)
}
