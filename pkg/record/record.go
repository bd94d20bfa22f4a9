// ABOUTME: Generic keyed record model shared by all backing stores
// ABOUTME: Records carry stable identifiers, never live object references

package record

import (
	"github.com/google/uuid"
)

// ID identifies a record by entity name and store key
type ID struct {
	Entity string
	Key    string
}

// NewID generates a fresh ID for an entity using a random UUID key
func NewID(entity string) ID {
	return ID{Entity: entity, Key: uuid.NewString()}
}

// IsZero reports whether the ID is unset
func (id ID) IsZero() bool {
	return id.Entity == "" && id.Key == ""
}

// String returns "entity/key"
func (id ID) String() string {
	return id.Entity + "/" + id.Key
}

// Record is a generic keyed record: an identity plus named field values.
// Field semantics (types, required flags, relationships) live in the schema
// layer; the record itself is untyped storage.
type Record struct {
	ID     ID
	Fields map[string]Value
}

// NewRecord creates an empty record with the given identity
func NewRecord(id ID) *Record {
	return &Record{
		ID:     id,
		Fields: make(map[string]Value),
	}
}

// Get returns the value stored under name
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Set stores a value under name
func (r *Record) Set(name string, v Value) {
	r.Fields[name] = v
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	out := &Record{
		ID:     r.ID,
		Fields: make(map[string]Value, len(r.Fields)),
	}
	for k, v := range r.Fields {
		if v.Type == TYPE_BYTES && v.Bytes != nil {
			b := make([]byte, len(v.Bytes))
			copy(b, v.Bytes)
			v.Bytes = b
		}
		if v.Type == TYPE_REFLIST && v.Refs != nil {
			refs := make([]ID, len(v.Refs))
			copy(refs, v.Refs)
			v.Refs = refs
		}
		out.Fields[k] = v
	}
	return out
}
