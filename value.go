package spillsort

import "cmp"

// CompareLessFunc reports whether a sorts strictly before b. The core
// imposes no further requirement on it being a total order; a relation
// that is not one produces unspecified (not undefined) output, the same
// way any comparison sort behaves under a broken comparator.
type CompareLessFunc[T any] func(a, b T) bool

// NaturalOrder returns the CompareLessFunc for T's built-in ordering.
func NaturalOrder[T cmp.Ordered]() CompareLessFunc[T] {
	return func(a, b T) bool { return a < b }
}

// ByKey returns a CompareLessFunc that orders values by the natural order
// of a key extracted from each one.
func ByKey[T any, K cmp.Ordered](key func(T) K) CompareLessFunc[T] {
	return func(a, b T) bool { return key(a) < key(b) }
}
