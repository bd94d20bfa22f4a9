// ABOUTME: Backing store contract consumed by the object-mapping core
// ABOUTME: Keyed record read/write, recorded schema version, mutation feed

package record

// Change kinds reported by the mutation feed
const (
	CHANGE_INSERT = uint8(1)
	CHANGE_UPDATE = uint8(2)
	CHANGE_DELETE = uint8(3)
)

// Change describes one committed record mutation
type Change struct {
	Kind uint8
	ID   ID
}

// Batch is one committed transaction's mutations, in commit order.
// Seq increases monotonically per store; watchers receive batches in
// Seq order, which is the ordering information diffing relies on.
type Batch struct {
	Seq     uint64
	Changes []Change
}

// KindName returns a human-readable name for a change kind
func KindName(k uint8) string {
	switch k {
	case CHANGE_INSERT:
		return "insert"
	case CHANGE_UPDATE:
		return "update"
	case CHANGE_DELETE:
		return "delete"
	}
	return "unknown"
}

// Lock is the store-side representation of a schema version lock:
// entity name to hex-encoded content hash.
type Lock map[string]string

// Store is the backing storage engine the core delegates to. Implementations
// must deliver Watch callbacks serially and in Seq order; callbacks run on a
// store-owned goroutine or the committing goroutine, never concurrently.
type Store interface {
	Open() error
	Close() error

	// Recorded schema bookkeeping. The bool reports presence.
	RecordedVersion() (string, bool, error)
	SetRecordedVersion(version string) error
	RecordedLock() (Lock, bool, error)
	SetRecordedLock(lock Lock) error

	// Begin starts a read-write transaction.
	Begin() (Txn, error)

	// All returns every record of an entity, ordered by key.
	All(entity string) ([]*Record, error)

	// Watch subscribes to the mutation feed. The returned func cancels
	// the subscription.
	Watch(fn func(Batch)) (cancel func())
}

// Txn is a read-write transaction against a Store
type Txn interface {
	Get(id ID) (*Record, error)
	Put(rec *Record) error
	Delete(id ID) error
	Commit() error
	Rollback() error
}
