package collections

import (
	"cmp"
	"fmt"
)

// Range is an inclusive range [Start, End]. A range with Start > End is empty.
type Range[T cmp.Ordered] struct {
	Start T
	End   T
}

func Inclusive[T cmp.Ordered](start, end T) Range[T] {
	return Range[T]{Start: start, End: end}
}

func (r Range[T]) Empty() bool {
	return r.Start > r.End
}

func (r Range[T]) Contains(v T) bool {
	return r.Start <= v && v <= r.End
}

// Intersection returns the range of values contained in both r and other, or false if they don't
// overlap. Touching ranges intersect in one value.
func (r Range[T]) Intersection(other Range[T]) (Range[T], bool) {
	start := max(r.Start, other.Start)
	end := min(r.End, other.End)
	if start > end {
		return Range[T]{}, false
	}
	return Range[T]{Start: start, End: end}, true
}

func (r Range[T]) String() string {
	return fmt.Sprintf("%v..=%v", r.Start, r.End)
}
