// Package buffer contains in-memory containers that reuse their storage between batches.
package buffer

import "iter"

// Buffer is an in-memory container for items.
//
// Implementations are not considered thread-safe unless stated otherwise, and each instance is
// used by a single worker.
type Buffer[Item any] interface {
	// Push appends an item to the buffer.
	Push(item Item)
	// PushInPlace appends an item by filling a slot of the buffer in place. If fill returns false,
	// nothing is appended and PushInPlace returns false.
	PushInPlace(fill func(item *Item) bool) bool
	// Len returns the number of items in the buffer.
	Len() int
	// Iter returns a sequence of all items in the buffer.
	Iter() iter.Seq[Item]
	// Clear removes all items from the buffer. The storage is kept for reuse.
	Clear()
	// Derive returns a new, empty buffer instance with the same settings.
	//
	// The returned buffer maintains its own internal state independent of the original.
	Derive() Buffer[Item]
}
