package buffer

import (
	"fmt"
	"iter"
)

// MergingBuffer keeps a single item per key. Pushing an item with a key that is already present
// merges it into the existing item instead of appending.
//
// Items are stored in a [PreallocatedBuffer] in the order their keys were first seen, so the
// storage is reused between batches the same way.
type MergingBuffer[Item any, Key comparable] struct {
	items     *PreallocatedBuffer[Item]
	index     map[Key]int
	scratch   Item
	keyFunc   func(Item) Key
	mergeFunc func(Item, Item) Item
}

var _ Buffer[any] = (*MergingBuffer[any, int])(nil)

// Merging creates a buffer with the given capacity. See [Preallocated] for the meaning of
// capacity and factory.
func Merging[Item any, Key comparable](
	capacity int,
	factory func() Item,
	keyFunc func(Item) Key,
	mergeFunc func(Item, Item) Item,
) *MergingBuffer[Item, Key] {
	if keyFunc == nil {
		panic("key func can't be nil")
	}
	if mergeFunc == nil {
		panic("merge func can't be nil")
	}
	return &MergingBuffer[Item, Key]{
		items:     Preallocated(capacity, factory),
		index:     make(map[Key]int, capacity),
		keyFunc:   keyFunc,
		mergeFunc: mergeFunc,
	}
}

func (b *MergingBuffer[Item, Key]) Push(item Item) {
	key := b.keyFunc(item)
	if i, ok := b.index[key]; ok {
		existing, _ := b.items.GetPtr(i)
		*existing = b.mergeFunc(*existing, item)
		return
	}
	b.index[key] = b.items.Len()
	b.items.Push(item)
}

// PushInPlace fills a scratch item owned by the buffer and pushes it. The scratch item keeps the
// value of the previous fill.
func (b *MergingBuffer[Item, Key]) PushInPlace(fill func(item *Item) bool) bool {
	if fill == nil {
		panic("fill can't be nil")
	}
	if !fill(&b.scratch) {
		return false
	}
	b.Push(b.scratch)
	return true
}

// Len returns the number of distinct keys.
func (b *MergingBuffer[Item, Key]) Len() int {
	return b.items.Len()
}

func (b *MergingBuffer[Item, Key]) Capacity() int {
	return b.items.Capacity()
}

func (b *MergingBuffer[Item, Key]) Iter() iter.Seq[Item] {
	return b.items.Iter()
}

func (b *MergingBuffer[Item, Key]) Clear() {
	b.items.Clear()
	clear(b.index)
}

func (b *MergingBuffer[Item, Key]) Derive() Buffer[Item] {
	return &MergingBuffer[Item, Key]{
		items:     b.items.Derive().(*PreallocatedBuffer[Item]),
		index:     make(map[Key]int, b.items.Capacity()),
		keyFunc:   b.keyFunc,
		mergeFunc: b.mergeFunc,
	}
}

func (b *MergingBuffer[Item, Key]) String() string {
	return fmt.Sprint(b.items)
}
