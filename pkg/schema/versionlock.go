// ABOUTME: Per-entity content hashes for schema drift detection
// ABOUTME: SHA-256 with domain separation over ordered hash inputs

package schema

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/nainya/objectstore/pkg/record"
)

// Domain prefix for version lock hashes. The version suffix enables
// future algorithm migration.
const lockDomain = "objectstore/versionlock/v1"

// VersionLock maps entity names to opaque content hashes. Two locks are
// equal iff every entity name is present in both with an equal hash.
type VersionLock map[string]string

// ComputeLockHash hashes one entity's ordered inputs.
// Format: SHA256(domain + 0x00 + entity + 0x00 + big-endian inputs).
// The null separators prevent boundary ambiguity; input ordering is
// significant and callers must supply a stable declaration order.
func ComputeLockHash(entity string, inputs []uint64) string {
	h := sha256.New()
	h.Write([]byte(lockDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(entity))
	h.Write([]byte{0x00})

	var buf [8]byte
	for _, in := range inputs {
		binary.BigEndian.PutUint64(buf[:], in)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LockFromModel builds the lock for a materialized model set
func LockFromModel(m *ModelSet) VersionLock {
	return m.Lock()
}

// Equal reports full-map equality: missing or extra entities make locks unequal
func (l VersionLock) Equal(other VersionLock) bool {
	if len(l) != len(other) {
		return false
	}
	for entity, hash := range l {
		if other[entity] != hash {
			return false
		}
	}
	return true
}

// Check compares the in-process lock against a store-recorded lock.
// A mismatch is a migration precondition failure, never a silent rewrite.
func (l VersionLock) Check(recorded VersionLock) error {
	if l.Equal(recorded) {
		return nil
	}
	for _, entity := range l.sortedEntities() {
		rec, ok := recorded[entity]
		if !ok {
			return fmt.Errorf("%w: entity %q missing from store lock", ErrMigrationRequired, entity)
		}
		if rec != l[entity] {
			return fmt.Errorf("%w: entity %q hash mismatch", ErrMigrationRequired, entity)
		}
	}
	// Equal on every shared entity but lengths differ: the store knows
	// entities this process does not.
	return fmt.Errorf("%w: store lock has extra entities", ErrMigrationRequired)
}

// ToRecordLock converts to the store-side representation
func (l VersionLock) ToRecordLock() record.Lock {
	out := make(record.Lock, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// LockFromRecord converts from the store-side representation
func LockFromRecord(rl record.Lock) VersionLock {
	out := make(VersionLock, len(rl))
	for k, v := range rl {
		out[k] = v
	}
	return out
}

func (l VersionLock) sortedEntities() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
