// ABOUTME: Process-lifetime descriptor cache with double-checked creation
// ABOUTME: Entries are created once, never mutated, never evicted

package schema

import (
	"fmt"
	"sync"
)

// DescriptorCache memoizes materialized model sets per version. Reads take
// the read lock; the create path materializes outside any lock, then takes
// the write lock and re-checks before inserting. Duplicate model sets for
// one version would break descriptor-identity fast paths downstream, so the
// first inserted set always wins.
type DescriptorCache struct {
	mu     sync.RWMutex
	models map[Version]*ModelSet
}

// NewDescriptorCache creates an empty cache
func NewDescriptorCache() *DescriptorCache {
	return &DescriptorCache{models: make(map[Version]*ModelSet)}
}

// Models returns the cached model set for a schema, materializing on first use
func (c *DescriptorCache) Models(s *DynamicSchema) (*ModelSet, error) {
	v := s.Version()

	c.mu.RLock()
	ms := c.models[v]
	c.mu.RUnlock()
	if ms != nil {
		return ms, nil
	}

	// Materialization validates inverse relationships across entities; it
	// must not run under the write lock or a recursive lookup would deadlock.
	built, err := s.Materialize()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.models[v]; existing != nil {
		return existing, nil
	}
	c.models[v] = built
	return built, nil
}

// Entity returns the cached entity model for (schema version, entity name)
func (c *DescriptorCache) Entity(s *DynamicSchema, name string) (*EntityModel, error) {
	ms, err := c.Models(s)
	if err != nil {
		return nil, err
	}
	em, ok := ms.Entity(name)
	if !ok {
		return nil, fmt.Errorf("%w: version %q has no entity %q", ErrInvalidSchema, s.Version(), name)
	}
	return em, nil
}
