package buffer

import (
	"iter"
	"slices"
	"sync"
)

var _ Buffer[any] = (*SharedBuffer[any])(nil)

// SharedBuffer guards a [PreallocatedBuffer] with a read-write lock so one goroutine can write
// while others read.
//
// Readers get copies of items. There are no pointer accessors; Update and UpdateLast run the
// mutation under the write lock instead.
type SharedBuffer[Item any] struct {
	mu  sync.RWMutex
	buf *PreallocatedBuffer[Item]
}

// Shared wraps buf. The caller must not use buf directly afterwards.
func Shared[Item any](buf *PreallocatedBuffer[Item]) *SharedBuffer[Item] {
	if buf == nil {
		panic("buffer can't be nil")
	}
	return &SharedBuffer[Item]{buf: buf}
}

func (s *SharedBuffer[Item]) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Capacity()
}

func (s *SharedBuffer[Item]) SetCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.SetCapacity(n)
}

func (s *SharedBuffer[Item]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Len()
}

func (s *SharedBuffer[Item]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
}

func (s *SharedBuffer[Item]) Get(i int) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Get(i)
}

func (s *SharedBuffer[Item]) Last() (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Last()
}

func (s *SharedBuffer[Item]) LastIndex() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.LastIndex()
}

// Update applies fn to the live item at index i under the write lock. It reports false if there
// is no such item.
func (s *SharedBuffer[Item]) Update(i int, fn func(item *Item)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.buf.GetPtr(i)
	if !ok {
		return false
	}
	fn(item)
	return true
}

// UpdateLast applies fn to the last live item under the write lock.
func (s *SharedBuffer[Item]) UpdateLast(fn func(item *Item)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.buf.LastPtr()
	if !ok {
		return false
	}
	fn(item)
	return true
}

func (s *SharedBuffer[Item]) Push(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Push(item)
}

// PushInPlace is [PreallocatedBuffer.PushInPlace] under the write lock. fill must not call back
// into the buffer.
func (s *SharedBuffer[Item]) PushInPlace(fill func(item *Item) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.PushInPlace(fill)
}

// Snapshot returns a copy of the live items.
func (s *SharedBuffer[Item]) Snapshot() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.buf.items[:s.buf.back])
}

// Iter returns a sequence over a snapshot of the live items.
func (s *SharedBuffer[Item]) Iter() iter.Seq[Item] {
	return slices.Values(s.Snapshot())
}

func (s *SharedBuffer[Item]) Derive() Buffer[Item] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Shared(Preallocated(s.buf.Capacity(), s.buf.factory))
}

func (s *SharedBuffer[Item]) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.String()
}
