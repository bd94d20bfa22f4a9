// ABOUTME: Unit-of-work session binding objects to one store transaction
// ABOUTME: Runs required-field validation at commit, not at set

package field

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nainya/objectstore/pkg/record"
	"github.com/nainya/objectstore/pkg/schema"
)

// Session is a unit of work over one store transaction. Objects fetched or
// created through a session belong to it; relationship writes across
// sessions are rejected with ErrCrossContext.
//
// Mutations accumulate on session-local record copies. Commit validates
// required fields across all dirty records first, so a constraint violation
// aborts with the store untouched.
type Session struct {
	store record.Store
	model *schema.ModelSet
	txn   record.Txn

	pending map[record.ID]*record.Record
	dirty   map[record.ID]bool
	deleted map[record.ID]bool
	done    bool
}

// NewSession begins a session against a store using the given model set
func NewSession(store record.Store, model *schema.ModelSet) (*Session, error) {
	txn, err := store.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &Session{
		store:   store,
		model:   model,
		txn:     txn,
		pending: make(map[record.ID]*record.Record),
		dirty:   make(map[record.ID]bool),
		deleted: make(map[record.ID]bool),
	}, nil
}

// Model returns the model set the session operates under
func (s *Session) Model() *schema.ModelSet {
	return s.model
}

// Create makes a new object of the given entity with a generated ID
func (s *Session) Create(entity string) (*Object, error) {
	if s.done {
		return nil, ErrSessionDone
	}
	em, ok := s.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	id := record.NewID(entity)
	rec := record.NewRecord(id)
	s.pending[id] = rec
	s.dirty[id] = true
	return &Object{sess: s, model: em, rec: rec}, nil
}

// Fetch loads an object by ID into the session
func (s *Session) Fetch(id record.ID) (*Object, error) {
	if s.done {
		return nil, ErrSessionDone
	}
	em, ok := s.model.Entity(id.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, id.Entity)
	}
	rec, err := s.loadRecord(id)
	if err != nil {
		return nil, err
	}
	return &Object{sess: s, model: em, rec: rec}, nil
}

// Delete marks an object for deletion at commit
func (s *Session) Delete(obj *Object) error {
	if s.done {
		return ErrSessionDone
	}
	if obj.sess != s {
		return fmt.Errorf("%w: object %s belongs to another session", ErrCrossContext, obj.ID())
	}
	id := obj.ID()
	s.deleted[id] = true
	delete(s.dirty, id)
	delete(s.pending, id)
	return nil
}

// Commit validates required fields across all dirty records, then writes
// every pending mutation and commits the store transaction. On a constraint
// violation nothing is written and the transaction is rolled back.
func (s *Session) Commit() error {
	if s.done {
		return ErrSessionDone
	}
	s.done = true

	dirtyIDs := make([]record.ID, 0, len(s.dirty))
	for id := range s.dirty {
		dirtyIDs = append(dirtyIDs, id)
	}
	sortIDs(dirtyIDs)

	for _, id := range dirtyIDs {
		if err := s.validateRequired(s.pending[id]); err != nil {
			s.txn.Rollback()
			return err
		}
	}

	deletedIDs := make([]record.ID, 0, len(s.deleted))
	for id := range s.deleted {
		deletedIDs = append(deletedIDs, id)
	}
	sortIDs(deletedIDs)

	for _, id := range deletedIDs {
		if err := s.txn.Delete(id); err != nil {
			s.txn.Rollback()
			return err
		}
	}
	for _, id := range dirtyIDs {
		if err := s.txn.Put(s.pending[id]); err != nil {
			s.txn.Rollback()
			return err
		}
	}
	return s.txn.Commit()
}

// Rollback discards all pending mutations
func (s *Session) Rollback() error {
	if s.done {
		return ErrSessionDone
	}
	s.done = true
	return s.txn.Rollback()
}

// loadRecord returns the session-local copy of a record, reading through
// to the transaction on first access
func (s *Session) loadRecord(id record.ID) (*record.Record, error) {
	if s.deleted[id] {
		return nil, record.ErrNotFound
	}
	if rec, ok := s.pending[id]; ok {
		return rec, nil
	}
	stored, err := s.txn.Get(id)
	if err != nil {
		return nil, err
	}
	rec := stored.Clone()
	s.pending[id] = rec
	return rec, nil
}

// markDirty flags a session-local record as mutated
func (s *Session) markDirty(id record.ID) {
	s.dirty[id] = true
}

// validateRequired enforces required stored and coded fields on one record
func (s *Session) validateRequired(rec *record.Record) error {
	em, ok := s.model.Entity(rec.ID.Entity)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, rec.ID.Entity)
	}
	for i := range em.Fields {
		fd := &em.Fields[i]
		if !fd.Required {
			continue
		}
		if fd.Kind != schema.KindStored && fd.Kind != schema.KindCoded {
			continue
		}
		v, present := rec.Get(fd.Name)
		if !present || v.IsNull() {
			return fmt.Errorf("%w: entity %q field %q is required", ErrConstraintViolation, em.Name, fd.Name)
		}
	}
	return nil
}

// setToOne performs the dual-write for a to-one relationship: detach the
// previous partner's inverse, attach the new partner's inverse, then set
// the owning reference. All checks run before any mutation so a rejected
// write leaves no partial state.
func (s *Session) setToOne(owner *Object, fd *schema.FieldDescriptor, target *Object) error {
	if s.done {
		return ErrSessionDone
	}

	var newRef record.ID
	if target != nil {
		if target.sess != s {
			return fmt.Errorf("%w: object %s belongs to another session", ErrCrossContext, target.ID())
		}
		if target.model.Name != fd.Target {
			return fmt.Errorf("%w: %s.%s targets %q, got %q",
				ErrFieldMismatch, owner.model.Name, fd.Name, fd.Target, target.model.Name)
		}
		newRef = target.ID()
	}

	var prevRef record.ID
	if v, ok := owner.rec.Get(fd.Name); ok && v.Type == record.TYPE_REF {
		prevRef = v.Ref
	}
	if prevRef == newRef {
		return nil
	}

	if fd.Inverse != "" {
		targetModel, _ := s.model.Entity(fd.Target)
		invFd, _ := targetModel.Field(fd.Inverse)

		if !prevRef.IsZero() {
			if err := s.detachInverse(prevRef, invFd, owner.ID()); err != nil {
				return err
			}
		}
		if target != nil {
			if err := s.attachInverse(target, invFd, owner); err != nil {
				return err
			}
		}
	}

	if target == nil {
		owner.rec.Set(fd.Name, record.NullValue())
	} else {
		owner.rec.Set(fd.Name, record.NewRefValue(newRef))
	}
	s.markDirty(owner.ID())
	return nil
}

// detachInverse removes ownerID from the inverse side held by holderID
func (s *Session) detachInverse(holderID record.ID, invFd *schema.FieldDescriptor, ownerID record.ID) error {
	holder, err := s.loadRecord(holderID)
	if err != nil {
		// A dangling reference or an in-session deletion leaves nothing
		// to detach.
		if errors.Is(err, record.ErrNotFound) {
			return nil
		}
		return err
	}
	switch invFd.Kind {
	case schema.KindToOne:
		if v, ok := holder.Get(invFd.Name); ok && v.Type == record.TYPE_REF && v.Ref == ownerID {
			holder.Set(invFd.Name, record.NullValue())
		}
	case schema.KindToManyOrdered, schema.KindToManyUnordered:
		removeRef(holder, invFd.Name, ownerID)
	}
	s.markDirty(holderID)
	return nil
}

// attachInverse adds the owner to the target's inverse side. A to-one
// inverse displaces the target's previous partner first, keeping the
// one-to-one pairing consistent.
func (s *Session) attachInverse(target *Object, invFd *schema.FieldDescriptor, owner *Object) error {
	switch invFd.Kind {
	case schema.KindToOne:
		if v, ok := target.rec.Get(invFd.Name); ok && v.Type == record.TYPE_REF && !v.Ref.IsZero() && v.Ref != owner.ID() {
			// The target already points at someone else; that partner's
			// forward reference must be cleared.
			ownerFd, _ := owner.model.Field(invFd.Inverse)
			if err := s.detachInverse(v.Ref, ownerFd, target.ID()); err != nil {
				return err
			}
		}
		target.rec.Set(invFd.Name, record.NewRefValue(owner.ID()))
	case schema.KindToManyOrdered, schema.KindToManyUnordered:
		addRef(target.rec, invFd.Name, owner.ID())
	}
	s.markDirty(target.ID())
	return nil
}

// addToMany adds target to the owner's to-many relationship, maintaining
// the declared inverse
func (s *Session) addToMany(owner *Object, fd *schema.FieldDescriptor, target *Object) error {
	if s.done {
		return ErrSessionDone
	}
	if target.sess != s {
		return fmt.Errorf("%w: object %s belongs to another session", ErrCrossContext, target.ID())
	}
	if target.model.Name != fd.Target {
		return fmt.Errorf("%w: %s.%s targets %q, got %q",
			ErrFieldMismatch, owner.model.Name, fd.Name, fd.Target, target.model.Name)
	}

	if fd.Inverse != "" {
		targetModel, _ := s.model.Entity(fd.Target)
		invFd, _ := targetModel.Field(fd.Inverse)
		if invFd.Kind == schema.KindToOne {
			// Adding through the to-many side is setting the to-one side;
			// that path already handles detaching the previous owner.
			return s.setToOne(target, invFd, owner)
		}
		// Many-to-many: both lists gain the partner.
		addRef(target.rec, invFd.Name, owner.ID())
		s.markDirty(target.ID())
	}

	addRef(owner.rec, fd.Name, target.ID())
	s.markDirty(owner.ID())
	return nil
}

// removeFromMany removes target from the owner's to-many relationship,
// maintaining the declared inverse
func (s *Session) removeFromMany(owner *Object, fd *schema.FieldDescriptor, target *Object) error {
	if s.done {
		return ErrSessionDone
	}
	if target.sess != s {
		return fmt.Errorf("%w: object %s belongs to another session", ErrCrossContext, target.ID())
	}

	if fd.Inverse != "" {
		targetModel, _ := s.model.Entity(fd.Target)
		invFd, _ := targetModel.Field(fd.Inverse)
		if invFd.Kind == schema.KindToOne {
			return s.setToOne(target, invFd, nil)
		}
		removeRef(target.rec, invFd.Name, owner.ID())
		s.markDirty(target.ID())
	}

	removeRef(owner.rec, fd.Name, target.ID())
	s.markDirty(owner.ID())
	return nil
}

// addRef appends an ID to a ref-list field if not already present
func addRef(rec *record.Record, name string, id record.ID) {
	v, ok := rec.Get(name)
	if !ok || v.Type != record.TYPE_REFLIST {
		rec.Set(name, record.NewRefListValue([]record.ID{id}))
		return
	}
	for _, existing := range v.Refs {
		if existing == id {
			return
		}
	}
	refs := append(append([]record.ID(nil), v.Refs...), id)
	rec.Set(name, record.NewRefListValue(refs))
}

// removeRef removes an ID from a ref-list field
func removeRef(rec *record.Record, name string, id record.ID) {
	v, ok := rec.Get(name)
	if !ok || v.Type != record.TYPE_REFLIST {
		return
	}
	refs := make([]record.ID, 0, len(v.Refs))
	for _, existing := range v.Refs {
		if existing != id {
			refs = append(refs, existing)
		}
	}
	rec.Set(name, record.NewRefListValue(refs))
}

func sortIDs(ids []record.ID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Entity != ids[j].Entity {
			return ids[i].Entity < ids[j].Entity
		}
		return ids[i].Key < ids[j].Key
	})
}
