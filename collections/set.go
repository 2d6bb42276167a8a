// Package collections contains small helpers around maps, sets and ranges.
package collections

// DiffKind tells where an item of a [Diff] was found.
type DiffKind int

const (
	// Same items are present in both sets.
	Same DiffKind = iota
	// Added items are present only in the second set.
	Added
	// Removed items are present only in the first set.
	Removed
)

func (k DiffKind) String() string {
	switch k {
	case Same:
		return "same"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type DiffItem[T comparable] struct {
	Kind DiffKind
	Item T
}

// Diff compares two sets. The result lists the items of both sets, each exactly once, grouped as
// same, then removed, then added. The order inside a group is unspecified.
func Diff[T comparable](from, to map[T]struct{}) []DiffItem[T] {
	diff := make([]DiffItem[T], 0, len(from)+len(to))
	for item := range from {
		if _, ok := to[item]; ok {
			diff = append(diff, DiffItem[T]{Kind: Same, Item: item})
		}
	}
	for item := range from {
		if _, ok := to[item]; !ok {
			diff = append(diff, DiffItem[T]{Kind: Removed, Item: item})
		}
	}
	for item := range to {
		if _, ok := from[item]; !ok {
			diff = append(diff, DiffItem[T]{Kind: Added, Item: item})
		}
	}
	return diff
}

// DrainFilter removes the items matching pred from set and returns them as a new set.
func DrainFilter[T comparable](set map[T]struct{}, pred func(T) bool) map[T]struct{} {
	removed := make(map[T]struct{})
	for item := range set {
		if pred(item) {
			removed[item] = struct{}{}
			delete(set, item)
		}
	}
	return removed
}

// Set builds a set from items.
func Set[T comparable](items ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
