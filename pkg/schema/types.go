// ABOUTME: Entity and field descriptor types with explicit builder API
// ABOUTME: Declarations are plain data; validation happens at materialize time

package schema

import (
	"github.com/nainya/objectstore/pkg/record"
)

// Version names one generation of the object model. Opaque and immutable.
type Version string

// Field kinds
type FieldKind uint8

const (
	KindStored FieldKind = iota + 1
	KindCoded
	KindToOne
	KindToManyOrdered
	KindToManyUnordered
)

// KindName returns a human-readable name for a field kind
func (k FieldKind) String() string {
	switch k {
	case KindStored:
		return "stored"
	case KindCoded:
		return "coded"
	case KindToOne:
		return "to-one"
	case KindToManyOrdered:
		return "to-many-ordered"
	case KindToManyUnordered:
		return "to-many-unordered"
	}
	return "unknown"
}

// IsRelationship reports whether the kind is a relationship variant
func (k FieldKind) IsRelationship() bool {
	switch k {
	case KindToOne, KindToManyOrdered, KindToManyUnordered:
		return true
	}
	return false
}

// Coder encodes and decodes values for coded fields. Name must be stable
// across processes; it participates in the version lock hash.
type Coder interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, into any) error
}

// FieldDescriptor describes one declared field of an entity
type FieldDescriptor struct {
	Name      string
	Kind      FieldKind
	Required  bool   // stored and coded fields
	ValueType uint8  // record.TYPE_* tag, stored fields only
	Coder     Coder  // coded fields only
	Target    string // relationship target entity
	Inverse   string // optional inverse field name on the target entity
}

// EntityDescriptor describes one declared entity: a name plus its fields
// in declaration order. Declaration order is significant; it feeds the
// version lock hash.
type EntityDescriptor struct {
	Name   string
	Fields []FieldDescriptor
}

// EntityBuilder assembles an EntityDescriptor field by field
type EntityBuilder struct {
	name   string
	fields []FieldDescriptor
}

// NewEntity starts building an entity declaration
func NewEntity(name string) *EntityBuilder {
	return &EntityBuilder{name: name}
}

// Stored declares a required stored field of the given value type
func (b *EntityBuilder) Stored(name string, valueType uint8) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:      name,
		Kind:      KindStored,
		Required:  true,
		ValueType: valueType,
	})
	return b
}

// OptionalStored declares an optional stored field of the given value type
func (b *EntityBuilder) OptionalStored(name string, valueType uint8) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:      name,
		Kind:      KindStored,
		ValueType: valueType,
	})
	return b
}

// Coded declares a required coded field using the given coder
func (b *EntityBuilder) Coded(name string, coder Coder) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:     name,
		Kind:     KindCoded,
		Required: true,
		Coder:    coder,
	})
	return b
}

// OptionalCoded declares an optional coded field using the given coder
func (b *EntityBuilder) OptionalCoded(name string, coder Coder) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:  name,
		Kind:  KindCoded,
		Coder: coder,
	})
	return b
}

// ToOne declares a to-one relationship. Pass inverse "" for none.
func (b *EntityBuilder) ToOne(name, target, inverse string) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:    name,
		Kind:    KindToOne,
		Target:  target,
		Inverse: inverse,
	})
	return b
}

// ToManyOrdered declares an ordered to-many relationship
func (b *EntityBuilder) ToManyOrdered(name, target, inverse string) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:    name,
		Kind:    KindToManyOrdered,
		Target:  target,
		Inverse: inverse,
	})
	return b
}

// ToManyUnordered declares an unordered to-many relationship
func (b *EntityBuilder) ToManyUnordered(name, target, inverse string) *EntityBuilder {
	b.fields = append(b.fields, FieldDescriptor{
		Name:    name,
		Kind:    KindToManyUnordered,
		Target:  target,
		Inverse: inverse,
	})
	return b
}

// Build finalizes the declaration
func (b *EntityBuilder) Build() EntityDescriptor {
	fields := make([]FieldDescriptor, len(b.fields))
	copy(fields, b.fields)
	return EntityDescriptor{Name: b.name, Fields: fields}
}

// validStoredType reports whether a value type tag is usable for stored fields.
// References are declared through relationship kinds, not stored fields.
func validStoredType(t uint8) bool {
	switch t {
	case record.TYPE_BYTES, record.TYPE_STRING, record.TYPE_INT64,
		record.TYPE_UINT64, record.TYPE_FLOAT64, record.TYPE_BOOL, record.TYPE_TIME:
		return true
	}
	return false
}
