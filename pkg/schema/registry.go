// ABOUTME: Schema registry with recorded-version resolution
// ABOUTME: Last-registered schema wins when the store records no version

package schema

import (
	"fmt"
	"sync"
)

// Registry holds registered schemas and resolves the active version against
// a backing store's recorded version. Pure: no side effects beyond its own
// memoization.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Version]*DynamicSchema
	order   []Version

	cache *DescriptorCache
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[Version]*DynamicSchema),
		cache:   NewDescriptorCache(),
	}
}

// Register adds a schema. Registering a version again replaces the earlier
// declaration and moves it to the end of the precedence order, so the most
// recently registered schema becomes the default for fresh stores.
func (r *Registry) Register(s *DynamicSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := s.Version()
	if _, exists := r.schemas[v]; exists {
		for i, ov := range r.order {
			if ov == v {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.schemas[v] = s
	r.order = append(r.order, v)
}

// Schema returns the registered schema for a version
func (r *Registry) Schema(v Version) (*DynamicSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[v]
	return s, ok
}

// Versions returns all registered versions in registration order
func (r *Registry) Versions() []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Version, len(r.order))
	copy(out, r.order)
	return out
}

// ResolveActiveVersion picks the schema a store connection must use.
//
// With no recorded version (fresh store) the last-registered schema wins;
// the caller records it into the store. With a recorded version, only an
// exact match is acceptable: silently picking a different schema risks
// data corruption, so absence is ErrSchemaNotFound.
func (r *Registry) ResolveActiveVersion(recorded *Version) (*DynamicSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if recorded == nil {
		if len(r.order) == 0 {
			return nil, fmt.Errorf("%w: no schemas registered", ErrSchemaNotFound)
		}
		return r.schemas[r.order[len(r.order)-1]], nil
	}

	s, ok := r.schemas[*recorded]
	if !ok {
		return nil, fmt.Errorf("%w: store records version %q", ErrSchemaNotFound, *recorded)
	}
	return s, nil
}

// ActiveModels resolves the active version and returns its materialized
// model set through the descriptor cache. Resolving the same version twice
// returns the identical *ModelSet instance.
func (r *Registry) ActiveModels(recorded *Version) (*ModelSet, error) {
	s, err := r.ResolveActiveVersion(recorded)
	if err != nil {
		return nil, err
	}
	return r.cache.Models(s)
}

// Entity returns the cached entity model for (version, entity)
func (r *Registry) Entity(v Version, entity string) (*EntityModel, error) {
	s, ok := r.Schema(v)
	if !ok {
		return nil, fmt.Errorf("%w: version %q not registered", ErrSchemaNotFound, v)
	}
	return r.cache.Entity(s, entity)
}
