// ABOUTME: In-memory backing store with an ordered mutation feed
// ABOUTME: Default store for tests and lightweight embedding

package memstore

import (
	"sort"
	"sync"

	"github.com/nainya/objectstore/pkg/record"
)

// Store is an in-memory record.Store. Watchers receive mutation batches
// serially, in commit (Seq) order.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]*record.Record

	version    string
	hasVersion bool
	lock       record.Lock
	hasLock    bool

	watchers    map[int]func(record.Batch)
	watchOrder  []int
	nextWatcher int

	seq    uint64
	closed bool
	opened bool

	// notifyMu serializes commit+notify so batches reach watchers in
	// Seq order.
	notifyMu sync.Mutex
}

// NewStore creates an unopened in-memory store
func NewStore() *Store {
	return &Store{
		records:  make(map[string]map[string]*record.Record),
		watchers: make(map[int]func(record.Batch)),
	}
}

// Open prepares the store for use
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return record.ErrStoreClosed
	}
	s.opened = true
	return nil
}

// Close shuts the store; further operations fail with ErrStoreClosed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// RecordedVersion returns the schema version recorded in the store
func (s *Store) RecordedVersion() (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, record.ErrStoreClosed
	}
	return s.version, s.hasVersion, nil
}

// SetRecordedVersion records the active schema version
func (s *Store) SetRecordedVersion(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return record.ErrStoreClosed
	}
	s.version = version
	s.hasVersion = true
	return nil
}

// RecordedLock returns the version lock recorded in the store
func (s *Store) RecordedLock() (record.Lock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, record.ErrStoreClosed
	}
	if !s.hasLock {
		return nil, false, nil
	}
	out := make(record.Lock, len(s.lock))
	for k, v := range s.lock {
		out[k] = v
	}
	return out, true, nil
}

// SetRecordedLock records the version lock
func (s *Store) SetRecordedLock(lock record.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return record.ErrStoreClosed
	}
	s.lock = make(record.Lock, len(lock))
	for k, v := range lock {
		s.lock[k] = v
	}
	s.hasLock = true
	return nil
}

// All returns every record of an entity, ordered by key
func (s *Store) All(entity string) ([]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, record.ErrStoreClosed
	}
	byKey := s.records[entity]
	out := make([]*record.Record, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Key < out[j].ID.Key
	})
	return out, nil
}

// Watch subscribes to the mutation feed
func (s *Store) Watch(fn func(record.Batch)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.watchOrder = append(s.watchOrder, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
		for i, wid := range s.watchOrder {
			if wid == id {
				s.watchOrder = append(s.watchOrder[:i], s.watchOrder[i+1:]...)
				break
			}
		}
	}
}

// Begin starts a transaction
func (s *Store) Begin() (record.Txn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !s.opened {
		return nil, record.ErrStoreClosed
	}
	return &txn{
		store: s,
		puts:  make(map[record.ID]*record.Record),
		dels:  make(map[record.ID]bool),
	}, nil
}

type txn struct {
	store *Store
	puts  map[record.ID]*record.Record
	dels  map[record.ID]bool
	done  bool
}

func (t *txn) Get(id record.ID) (*record.Record, error) {
	if t.done {
		return nil, record.ErrTxnDone
	}
	if t.dels[id] {
		return nil, record.ErrNotFound
	}
	if rec, ok := t.puts[id]; ok {
		return rec.Clone(), nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if t.store.closed {
		return nil, record.ErrStoreClosed
	}
	rec, ok := t.store.records[id.Entity][id.Key]
	if !ok {
		return nil, record.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *txn) Put(rec *record.Record) error {
	if t.done {
		return record.ErrTxnDone
	}
	t.puts[rec.ID] = rec.Clone()
	delete(t.dels, rec.ID)
	return nil
}

func (t *txn) Delete(id record.ID) error {
	if t.done {
		return record.ErrTxnDone
	}
	t.dels[id] = true
	delete(t.puts, id)
	return nil
}

func (t *txn) Rollback() error {
	if t.done {
		return record.ErrTxnDone
	}
	t.done = true
	return nil
}

func (t *txn) Commit() error {
	if t.done {
		return record.ErrTxnDone
	}
	t.done = true

	s := t.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return record.ErrStoreClosed
	}

	var changes []record.Change

	delIDs := make([]record.ID, 0, len(t.dels))
	for id := range t.dels {
		delIDs = append(delIDs, id)
	}
	sortIDs(delIDs)
	for _, id := range delIDs {
		if _, exists := s.records[id.Entity][id.Key]; exists {
			delete(s.records[id.Entity], id.Key)
			changes = append(changes, record.Change{Kind: record.CHANGE_DELETE, ID: id})
		}
	}

	putIDs := make([]record.ID, 0, len(t.puts))
	for id := range t.puts {
		putIDs = append(putIDs, id)
	}
	sortIDs(putIDs)
	for _, id := range putIDs {
		kind := record.CHANGE_INSERT
		if _, exists := s.records[id.Entity][id.Key]; exists {
			kind = record.CHANGE_UPDATE
		}
		if s.records[id.Entity] == nil {
			s.records[id.Entity] = make(map[string]*record.Record)
		}
		s.records[id.Entity][id.Key] = t.puts[id].Clone()
		changes = append(changes, record.Change{Kind: kind, ID: id})
	}

	if len(changes) == 0 {
		s.mu.Unlock()
		return nil
	}

	s.seq++
	batch := record.Batch{Seq: s.seq, Changes: changes}
	watchers := make([]func(record.Batch), 0, len(s.watchOrder))
	for _, wid := range s.watchOrder {
		watchers = append(watchers, s.watchers[wid])
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(batch)
	}
	return nil
}

func sortIDs(ids []record.ID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Entity != ids[j].Entity {
			return ids[i].Entity < ids[j].Entity
		}
		return ids[i].Key < ids[j].Key
	})
}
