// ABOUTME: Total ordering over field values for snapshot sorting
package record

import "bytes"

// Compare defines a total order over values: by type tag first, then by
// content. Null sorts before everything.
func Compare(a, b Value) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	switch a.Type {
	case TYPE_NULL:
		return 0
	case TYPE_BYTES:
		return bytes.Compare(a.Bytes, b.Bytes)
	case TYPE_STRING:
		return compareOrdered(a.Str, b.Str)
	case TYPE_INT64:
		return compareOrdered(a.I64, b.I64)
	case TYPE_UINT64:
		return compareOrdered(a.U64, b.U64)
	case TYPE_FLOAT64:
		return compareOrdered(a.F64, b.F64)
	case TYPE_BOOL:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case TYPE_TIME:
		if a.Time.Equal(b.Time) {
			return 0
		}
		if a.Time.Before(b.Time) {
			return -1
		}
		return 1
	case TYPE_REF:
		if c := compareOrdered(a.Ref.Entity, b.Ref.Entity); c != 0 {
			return c
		}
		return compareOrdered(a.Ref.Key, b.Ref.Key)
	}
	return 0
}

func compareOrdered[T interface {
	~string | ~int64 | ~uint64 | ~float64
}](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
