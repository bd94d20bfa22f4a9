// ABOUTME: Tests for registry resolution and descriptor caching
// ABOUTME: Verifies last-registered precedence and exact-match semantics

package schema

import (
	"errors"
	"testing"

	"github.com/nainya/objectstore/pkg/record"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, v := range []Version{"v1", "v2"} {
		e := NewEntity("Person").Stored("name", record.TYPE_STRING).Build()
		r.Register(NewSchema(v, e))
	}
	return r
}

func TestResolveFreshStoreUsesLastRegistered(t *testing.T) {
	r := setupRegistry(t)

	s, err := r.ResolveActiveVersion(nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.Version() != "v2" {
		t.Errorf("Expected last-registered v2, got %q", s.Version())
	}

	// Re-registering v1 moves it to the end of the precedence order
	e := NewEntity("Person").Stored("name", record.TYPE_STRING).Build()
	r.Register(NewSchema("v1", e))
	s, err = r.ResolveActiveVersion(nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.Version() != "v1" {
		t.Errorf("Expected re-registered v1 to win, got %q", s.Version())
	}
}

func TestResolveEmptyRegistryFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.ResolveActiveVersion(nil)
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("Expected ErrSchemaNotFound, got %v", err)
	}
}

func TestResolveRecordedVersionIsExactMatch(t *testing.T) {
	r := setupRegistry(t)

	v := Version("v1")
	s, err := r.ResolveActiveVersion(&v)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.Version() != "v1" {
		t.Errorf("Expected v1, got %q", s.Version())
	}

	unknown := Version("v9")
	_, err = r.ResolveActiveVersion(&unknown)
	if !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("Expected ErrSchemaNotFound for unknown recorded version, got %v", err)
	}
}

func TestActiveModelsReturnsIdenticalInstance(t *testing.T) {
	r := setupRegistry(t)

	m1, err := r.ActiveModels(nil)
	if err != nil {
		t.Fatalf("ActiveModels failed: %v", err)
	}
	m2, err := r.ActiveModels(nil)
	if err != nil {
		t.Fatalf("Second ActiveModels failed: %v", err)
	}
	if m1 != m2 {
		t.Error("Repeated resolution should return the identical ModelSet")
	}

	v := Version("v2")
	m3, err := r.ActiveModels(&v)
	if err != nil {
		t.Fatalf("ActiveModels by version failed: %v", err)
	}
	if m1 != m3 {
		t.Error("Resolution by recorded version should hit the same cache entry")
	}
}

func TestRegistryEntityLookup(t *testing.T) {
	r := setupRegistry(t)

	em, err := r.Entity("v1", "Person")
	if err != nil {
		t.Fatalf("Entity lookup failed: %v", err)
	}
	if em.Name != "Person" {
		t.Errorf("Expected Person, got %q", em.Name)
	}

	em2, err := r.Entity("v1", "Person")
	if err != nil {
		t.Fatalf("Second lookup failed: %v", err)
	}
	if em != em2 {
		t.Error("Entity models should be cached per (version, entity)")
	}

	if _, err := r.Entity("v9", "Person"); !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("Expected ErrSchemaNotFound for unknown version, got %v", err)
	}
}
