// ABOUTME: Typed value union for generic record fields
// ABOUTME: Tagged variants with typed constructors and equality

package record

import "time"

// Value types for record fields
const (
	TYPE_NULL    = uint8(0)
	TYPE_BYTES   = uint8(1)
	TYPE_STRING  = uint8(2)
	TYPE_INT64   = uint8(3)
	TYPE_UINT64  = uint8(4)
	TYPE_FLOAT64 = uint8(5)
	TYPE_BOOL    = uint8(6)
	TYPE_TIME    = uint8(7)
	TYPE_REF     = uint8(8)
	TYPE_REFLIST = uint8(9)
)

// Value represents a single typed field value in a record
type Value struct {
	Type  uint8
	Bytes []byte
	Str   string
	I64   int64
	U64   uint64
	F64   float64
	Bool  bool
	Time  time.Time
	Ref   ID
	Refs  []ID
}

// NullValue creates an absent value
func NullValue() Value {
	return Value{Type: TYPE_NULL}
}

// NewBytesValue creates a bytes value
func NewBytesValue(data []byte) Value {
	return Value{Type: TYPE_BYTES, Bytes: data}
}

// NewStringValue creates a string value
func NewStringValue(s string) Value {
	return Value{Type: TYPE_STRING, Str: s}
}

// NewInt64Value creates an int64 value
func NewInt64Value(i int64) Value {
	return Value{Type: TYPE_INT64, I64: i}
}

// NewUint64Value creates a uint64 value
func NewUint64Value(u uint64) Value {
	return Value{Type: TYPE_UINT64, U64: u}
}

// NewFloat64Value creates a float64 value
func NewFloat64Value(f float64) Value {
	return Value{Type: TYPE_FLOAT64, F64: f}
}

// NewBoolValue creates a bool value
func NewBoolValue(b bool) Value {
	return Value{Type: TYPE_BOOL, Bool: b}
}

// NewTimeValue creates a time value
func NewTimeValue(t time.Time) Value {
	return Value{Type: TYPE_TIME, Time: t}
}

// NewRefValue creates a to-one reference value
func NewRefValue(id ID) Value {
	return Value{Type: TYPE_REF, Ref: id}
}

// NewRefListValue creates a to-many reference value
func NewRefListValue(ids []ID) Value {
	return Value{Type: TYPE_REFLIST, Refs: ids}
}

// IsNull reports whether the value is absent
func (v Value) IsNull() bool {
	return v.Type == TYPE_NULL
}

// Equal reports whether two values are equal in type and content
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TYPE_NULL:
		return true
	case TYPE_BYTES:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	case TYPE_STRING:
		return v.Str == other.Str
	case TYPE_INT64:
		return v.I64 == other.I64
	case TYPE_UINT64:
		return v.U64 == other.U64
	case TYPE_FLOAT64:
		return v.F64 == other.F64
	case TYPE_BOOL:
		return v.Bool == other.Bool
	case TYPE_TIME:
		return v.Time.Equal(other.Time)
	case TYPE_REF:
		return v.Ref == other.Ref
	case TYPE_REFLIST:
		if len(v.Refs) != len(other.Refs) {
			return false
		}
		for i := range v.Refs {
			if v.Refs[i] != other.Refs[i] {
				return false
			}
		}
		return true
	}
	return false
}

// TypeName returns a human-readable name for a value type tag
func TypeName(t uint8) string {
	switch t {
	case TYPE_NULL:
		return "null"
	case TYPE_BYTES:
		return "bytes"
	case TYPE_STRING:
		return "string"
	case TYPE_INT64:
		return "int64"
	case TYPE_UINT64:
		return "uint64"
	case TYPE_FLOAT64:
		return "float64"
	case TYPE_BOOL:
		return "bool"
	case TYPE_TIME:
		return "time"
	case TYPE_REF:
		return "ref"
	case TYPE_REFLIST:
		return "reflist"
	}
	return "unknown"
}
