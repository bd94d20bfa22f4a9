// ABOUTME: DynamicSchema with idempotent, memoized materialization
// ABOUTME: Validates entity and inverse relationship declarations at build time

package schema

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// DynamicSchema maps a Version to a set of entity declarations. Materialization
// is memoized: repeated calls return the identical *ModelSet, because downstream
// field access relies on descriptor identity for fast-path caching.
type DynamicSchema struct {
	version  Version
	declared []EntityDescriptor

	mu    sync.Mutex
	model *ModelSet
	err   error
	done  bool
}

// NewSchema creates a schema for one version from entity declarations.
// Declaration order is preserved and participates in the version lock.
func NewSchema(version Version, entities ...EntityDescriptor) *DynamicSchema {
	declared := make([]EntityDescriptor, len(entities))
	copy(declared, entities)
	return &DynamicSchema{version: version, declared: declared}
}

// Version returns the schema version
func (s *DynamicSchema) Version() Version {
	return s.version
}

// Materialize validates the declarations and builds the model set.
// Idempotent: every call returns the same *ModelSet instance (or the
// same error for a malformed schema).
func (s *DynamicSchema) Materialize() (*ModelSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return s.model, s.err
	}

	s.model, s.err = buildModelSet(s.version, s.declared)
	s.done = true
	return s.model, s.err
}

// ModelSet is the materialized form of one schema version: validated entity
// models plus the precomputed version lock. Immutable after construction.
type ModelSet struct {
	version Version
	ordered []*EntityModel
	byName  map[string]*EntityModel
	lock    VersionLock
}

// Version returns the schema version this model set was built from
func (m *ModelSet) Version() Version {
	return m.version
}

// Entity returns the model for a named entity
func (m *ModelSet) Entity(name string) (*EntityModel, bool) {
	em, ok := m.byName[name]
	return em, ok
}

// Entities returns all entity models in declaration order
func (m *ModelSet) Entities() []*EntityModel {
	return m.ordered
}

// Lock returns the version lock computed over all entities
func (m *ModelSet) Lock() VersionLock {
	return m.lock
}

// EntityModel is the runtime descriptor for one entity: cached once per
// (schema version, entity) pair and shared across all instances.
type EntityModel struct {
	Name   string
	Fields []FieldDescriptor

	index      map[string]int
	hashInputs []uint64
}

// Field returns the descriptor for a named field
func (e *EntityModel) Field(name string) (*FieldDescriptor, bool) {
	i, ok := e.index[name]
	if !ok {
		return nil, false
	}
	return &e.Fields[i], true
}

// HashInputs returns the per-field hash inputs in declaration order.
// Ordering is significant: the version lock is ordering-sensitive.
func (e *EntityModel) HashInputs() []uint64 {
	return e.hashInputs
}

func buildModelSet(version Version, declared []EntityDescriptor) (*ModelSet, error) {
	byName := make(map[string]*EntityModel, len(declared))
	ordered := make([]*EntityModel, 0, len(declared))

	for _, decl := range declared {
		if decl.Name == "" {
			return nil, fmt.Errorf("%w: entity with empty name", ErrInvalidSchema)
		}
		if _, dup := byName[decl.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidSchema, decl.Name)
		}

		em := &EntityModel{
			Name:   decl.Name,
			Fields: append([]FieldDescriptor(nil), decl.Fields...),
			index:  make(map[string]int, len(decl.Fields)),
		}
		for i, fd := range em.Fields {
			if fd.Name == "" {
				return nil, fmt.Errorf("%w: entity %q has a field with empty name", ErrInvalidSchema, decl.Name)
			}
			if _, dup := em.index[fd.Name]; dup {
				return nil, fmt.Errorf("%w: entity %q duplicate field %q", ErrInvalidSchema, decl.Name, fd.Name)
			}
			em.index[fd.Name] = i
		}
		byName[decl.Name] = em
		ordered = append(ordered, em)
	}

	// Field-level validation needs every entity present, so it runs second.
	for _, em := range ordered {
		for i := range em.Fields {
			if err := validateField(byName, em, &em.Fields[i]); err != nil {
				return nil, err
			}
		}
	}

	// Hash inputs and lock are computed once, after validation.
	lock := make(VersionLock, len(ordered))
	for _, em := range ordered {
		em.hashInputs = make([]uint64, len(em.Fields))
		for i := range em.Fields {
			em.hashInputs[i] = fieldHashInput(&em.Fields[i])
		}
		lock[em.Name] = ComputeLockHash(em.Name, em.hashInputs)
	}

	return &ModelSet{
		version: version,
		ordered: ordered,
		byName:  byName,
		lock:    lock,
	}, nil
}

func validateField(byName map[string]*EntityModel, owner *EntityModel, fd *FieldDescriptor) error {
	switch fd.Kind {
	case KindStored:
		if !validStoredType(fd.ValueType) {
			return fmt.Errorf("%w: entity %q stored field %q has invalid value type %d",
				ErrInvalidSchema, owner.Name, fd.Name, fd.ValueType)
		}
		return nil

	case KindCoded:
		if fd.Coder == nil {
			return fmt.Errorf("%w: entity %q coded field %q has no coder",
				ErrInvalidSchema, owner.Name, fd.Name)
		}
		return nil

	case KindToOne, KindToManyOrdered, KindToManyUnordered:
		target, ok := byName[fd.Target]
		if !ok {
			return fmt.Errorf("%w: entity %q relationship %q targets unknown entity %q",
				ErrInvalidSchema, owner.Name, fd.Name, fd.Target)
		}
		if fd.Inverse == "" {
			return nil
		}
		inv, ok := target.Field(fd.Inverse)
		if !ok {
			return fmt.Errorf("%w: entity %q relationship %q declares inverse %q, not found on entity %q",
				ErrInvalidSchema, owner.Name, fd.Name, fd.Inverse, fd.Target)
		}
		if !inv.Kind.IsRelationship() {
			return fmt.Errorf("%w: entity %q relationship %q inverse %q on %q is not a relationship",
				ErrInvalidSchema, owner.Name, fd.Name, fd.Inverse, fd.Target)
		}
		if inv.Target != owner.Name || inv.Inverse != fd.Name {
			return fmt.Errorf("%w: entity %q relationship %q inverse %q on %q does not point back",
				ErrInvalidSchema, owner.Name, fd.Name, fd.Inverse, fd.Target)
		}
		return nil
	}

	return fmt.Errorf("%w: entity %q field %q has unknown kind %d",
		ErrInvalidSchema, owner.Name, fd.Name, fd.Kind)
}

// fieldHashInput derives the version lock input for one field declaration.
// Every declared property that affects stored bytes participates.
func fieldHashInput(fd *FieldDescriptor) uint64 {
	h := fnv.New64a()
	h.Write([]byte(fd.Name))
	h.Write([]byte{0x00, byte(fd.Kind)})
	if fd.Required {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte{fd.ValueType, 0x00})
	if fd.Coder != nil {
		h.Write([]byte(fd.Coder.Name()))
	}
	h.Write([]byte{0x00})
	h.Write([]byte(fd.Target))
	h.Write([]byte{0x00})
	h.Write([]byte(fd.Inverse))
	return h.Sum64()
}
