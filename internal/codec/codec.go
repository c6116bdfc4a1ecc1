// Package codec reinterprets contiguous slices of fixed-layout values as
// raw bytes and back, without per-element encoding. This is the mechanism
// by which values cross the memory/disk boundary: no marshaling, no
// versioning, no endianness fixups.
package codec

import (
	"reflect"
	"unsafe"
)

// AsBytes returns a byte view over s with identical lifetime: writes
// through the returned slice are writes to s, and vice versa. The view's
// length is len(s)*sizeof(T).
//
// s must not be reallocated (appended past its capacity) while the
// returned view is in use; callers hold s fixed for the view's lifetime.
func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), uintptr(len(s))*size)
}

// FromBytes reinterprets b, previously produced by AsBytes for the same T,
// as a live []T. b must be aligned to AlignOf[T]() and its length must be a
// multiple of SizeOf[T](); callers achieve the alignment requirement by
// allocating the backing storage as []T in the first place (Go's allocator
// aligns a []T allocation to T's natural alignment) and taking the byte
// view of that allocation, rather than aligning a raw []byte after the
// fact.
func FromBytes[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	n := uintptr(len(b)) / size
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// SizeOf returns sizeof(T) in bytes, as used by the Ingest Buffer capacity
// and readahead sizing computations (C = floor(memory_budget/S), R =
// floor(readahead_bytes/S)).
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// AlignOf returns alignof(T).
func AlignOf[T any]() int {
	var zero T
	return int(unsafe.Alignof(zero))
}

// HasIndirection reports whether T's layout contains a pointer, slice,
// string, map, chan, func, or interface anywhere in its structure. Such
// types are not self-contained bit patterns: reinterpreting their bytes
// after a round trip through disk does not reconstruct a valid value,
// since the referenced memory was never written to disk. The core rejects
// these types at construction (spec: "restrict to types whose bit pattern
// is self-contained and trivially movable").
func HasIndirection[T any]() bool {
	var zero T
	// reflect.TypeOf(zero) loses the static type when T is itself an
	// interface and zero is a nil interface value; reflect.TypeOf(&zero)
	// always carries it, since *T is never nil.
	t := reflect.TypeOf(&zero).Elem()
	return hasIndirection(t, make(map[reflect.Type]bool))
}

func hasIndirection(t reflect.Type, seen map[reflect.Type]bool) bool {
	if t == nil {
		return false
	}
	if seen[t] {
		return false
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.String, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return hasIndirection(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasIndirection(t.Field(i).Type, seen) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
