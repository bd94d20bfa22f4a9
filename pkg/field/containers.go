// ABOUTME: Typed field containers mediating access into generic records
// ABOUTME: Containers are metadata descriptors identified by entity and name

package field

import (
	"fmt"

	"github.com/nainya/objectstore/pkg/record"
	"github.com/nainya/objectstore/pkg/schema"
)

// Object is a typed handle over one record inside a session
type Object struct {
	sess  *Session
	model *schema.EntityModel
	rec   *record.Record
}

// ID returns the object's record identity
func (o *Object) ID() record.ID {
	return o.rec.ID
}

// Entity returns the object's entity name
func (o *Object) Entity() string {
	return o.model.Name
}

// Session returns the owning session
func (o *Object) Session() *Session {
	return o.sess
}

// Stored is a container for stored-value fields. Identity is the declared
// entity and field name, not the instance; two Stored values naming the
// same keypath are the same container.
type Stored struct {
	Entity string
	Name   string
}

// Get translates the generic record lookup into the declared value
func (f Stored) Get(o *Object) (record.Value, error) {
	fd, err := f.descriptor(o, schema.KindStored)
	if err != nil {
		return record.Value{}, err
	}
	v, ok := o.rec.Get(fd.Name)
	if !ok {
		return record.NullValue(), nil
	}
	return v, nil
}

// Set writes a value. Type mismatches are rejected immediately; a required
// field set to null passes here and fails at commit, allowing provisional
// multi-step edits.
func (f Stored) Set(o *Object, v record.Value) error {
	fd, err := f.descriptor(o, schema.KindStored)
	if err != nil {
		return err
	}
	if !v.IsNull() && v.Type != fd.ValueType {
		return fmt.Errorf("%w: %s.%s expects %s, got %s",
			ErrFieldMismatch, f.Entity, f.Name,
			record.TypeName(fd.ValueType), record.TypeName(v.Type))
	}
	if o.sess.done {
		return ErrSessionDone
	}
	o.rec.Set(fd.Name, v)
	o.sess.markDirty(o.ID())
	return nil
}

// Coded is a container for coded (transformed) fields
type Coded struct {
	Entity string
	Name   string
}

// Get decodes the stored bytes into the given target. The bool reports
// presence; decode failures wrap ErrDecode.
func (f Coded) Get(o *Object, into any) (bool, error) {
	fd, err := f.descriptor(o, schema.KindCoded)
	if err != nil {
		return false, err
	}
	v, ok := o.rec.Get(fd.Name)
	if !ok || v.IsNull() {
		return false, nil
	}
	if v.Type != record.TYPE_BYTES {
		return false, fmt.Errorf("%w: %s.%s holds %s, expected bytes",
			ErrDecode, f.Entity, f.Name, record.TypeName(v.Type))
	}
	if err := fd.Coder.Decode(v.Bytes, into); err != nil {
		return false, fmt.Errorf("%w: %s.%s: %v", ErrDecode, f.Entity, f.Name, err)
	}
	return true, nil
}

// Set encodes a value through the field's coder. A nil value clears the field.
func (f Coded) Set(o *Object, v any) error {
	fd, err := f.descriptor(o, schema.KindCoded)
	if err != nil {
		return err
	}
	if o.sess.done {
		return ErrSessionDone
	}
	if v == nil {
		o.rec.Set(fd.Name, record.NullValue())
		o.sess.markDirty(o.ID())
		return nil
	}
	data, err := fd.Coder.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", f.Entity, f.Name, err)
	}
	o.rec.Set(fd.Name, record.NewBytesValue(data))
	o.sess.markDirty(o.ID())
	return nil
}

// ToOne is a container for to-one relationship fields
type ToOne struct {
	Entity string
	Name   string
}

// Get fetches the related object, or nil when unset
func (f ToOne) Get(o *Object) (*Object, error) {
	fd, err := f.descriptor(o, schema.KindToOne)
	if err != nil {
		return nil, err
	}
	v, ok := o.rec.Get(fd.Name)
	if !ok || v.Type != record.TYPE_REF || v.Ref.IsZero() {
		return nil, nil
	}
	return o.sess.Fetch(v.Ref)
}

// Set assigns the relationship. With a declared inverse both sides stay
// mutually consistent: the previous partner is detached, the new partner
// attached, as one logical operation.
func (f ToOne) Set(o *Object, target *Object) error {
	fd, err := f.descriptor(o, schema.KindToOne)
	if err != nil {
		return err
	}
	return o.sess.setToOne(o, fd, target)
}

// ToManyOrdered is a container for ordered to-many relationship fields
type ToManyOrdered struct {
	Entity string
	Name   string
}

// IDs returns the related record IDs in order
func (f ToManyOrdered) IDs(o *Object) ([]record.ID, error) {
	fd, err := f.descriptor(o, schema.KindToManyOrdered)
	if err != nil {
		return nil, err
	}
	return refIDs(o, fd), nil
}

// Get fetches the related objects in order
func (f ToManyOrdered) Get(o *Object) ([]*Object, error) {
	ids, err := f.IDs(o)
	if err != nil {
		return nil, err
	}
	return fetchAll(o.sess, ids)
}

// Add appends a target to the relationship, maintaining the inverse
func (f ToManyOrdered) Add(o *Object, target *Object) error {
	fd, err := f.descriptor(o, schema.KindToManyOrdered)
	if err != nil {
		return err
	}
	return o.sess.addToMany(o, fd, target)
}

// Remove detaches a target from the relationship, maintaining the inverse
func (f ToManyOrdered) Remove(o *Object, target *Object) error {
	fd, err := f.descriptor(o, schema.KindToManyOrdered)
	if err != nil {
		return err
	}
	return o.sess.removeFromMany(o, fd, target)
}

// ToManyUnordered is a container for unordered to-many relationship fields.
// Insertion order is preserved internally but carries no meaning.
type ToManyUnordered struct {
	Entity string
	Name   string
}

// IDs returns the related record IDs
func (f ToManyUnordered) IDs(o *Object) ([]record.ID, error) {
	fd, err := f.descriptor(o, schema.KindToManyUnordered)
	if err != nil {
		return nil, err
	}
	return refIDs(o, fd), nil
}

// Get fetches the related objects
func (f ToManyUnordered) Get(o *Object) ([]*Object, error) {
	ids, err := f.IDs(o)
	if err != nil {
		return nil, err
	}
	return fetchAll(o.sess, ids)
}

// Contains reports membership of a target in the relationship
func (f ToManyUnordered) Contains(o *Object, target *Object) (bool, error) {
	ids, err := f.IDs(o)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == target.ID() {
			return true, nil
		}
	}
	return false, nil
}

// Add inserts a target into the relationship, maintaining the inverse
func (f ToManyUnordered) Add(o *Object, target *Object) error {
	fd, err := f.descriptor(o, schema.KindToManyUnordered)
	if err != nil {
		return err
	}
	return o.sess.addToMany(o, fd, target)
}

// Remove detaches a target from the relationship, maintaining the inverse
func (f ToManyUnordered) Remove(o *Object, target *Object) error {
	fd, err := f.descriptor(o, schema.KindToManyUnordered)
	if err != nil {
		return err
	}
	return o.sess.removeFromMany(o, fd, target)
}

// descriptor resolves and checks the declared field for a container use.
// Shared by all container variants through small wrappers.
func (f Stored) descriptor(o *Object, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	return lookupDescriptor(o, f.Entity, f.Name, kind)
}

func (f Coded) descriptor(o *Object, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	return lookupDescriptor(o, f.Entity, f.Name, kind)
}

func (f ToOne) descriptor(o *Object, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	return lookupDescriptor(o, f.Entity, f.Name, kind)
}

func (f ToManyOrdered) descriptor(o *Object, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	return lookupDescriptor(o, f.Entity, f.Name, kind)
}

func (f ToManyUnordered) descriptor(o *Object, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	return lookupDescriptor(o, f.Entity, f.Name, kind)
}

func lookupDescriptor(o *Object, entity, name string, kind schema.FieldKind) (*schema.FieldDescriptor, error) {
	if o.model.Name != entity {
		return nil, fmt.Errorf("%w: container %s.%s used on entity %q",
			ErrFieldMismatch, entity, name, o.model.Name)
	}
	fd, ok := o.model.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: entity %q has no field %q", ErrFieldMismatch, entity, name)
	}
	if fd.Kind != kind {
		return nil, fmt.Errorf("%w: %s.%s is %s, container expects %s",
			ErrFieldMismatch, entity, name, fd.Kind, kind)
	}
	return fd, nil
}

func refIDs(o *Object, fd *schema.FieldDescriptor) []record.ID {
	v, ok := o.rec.Get(fd.Name)
	if !ok || v.Type != record.TYPE_REFLIST {
		return nil
	}
	out := make([]record.ID, len(v.Refs))
	copy(out, v.Refs)
	return out
}

func fetchAll(s *Session, ids []record.ID) ([]*Object, error) {
	out := make([]*Object, 0, len(ids))
	for _, id := range ids {
		obj, err := s.Fetch(id)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
