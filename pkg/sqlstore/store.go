// ABOUTME: SQLite-backed store with a persistent mutation journal
// ABOUTME: Records are CBOR blobs; the journal orders the mutation feed

package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nainya/objectstore/pkg/record"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS records (
	entity TEXT NOT NULL,
	key    TEXT NOT NULL,
	fields BLOB NOT NULL,
	PRIMARY KEY (entity, key)
);
CREATE TABLE IF NOT EXISTS meta (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	seq   INTEGER PRIMARY KEY AUTOINCREMENT,
	batch BLOB NOT NULL
);
`

const (
	metaVersion = "schema_version"
	metaLock    = "version_lock"
)

// Store is a SQLite-backed record.Store. Every committed transaction
// appends a journal row; the journal's sequence orders the mutation feed.
type Store struct {
	Path string

	db *sql.DB

	mu          sync.Mutex
	watchers    map[int]func(record.Batch)
	watchOrder  []int
	nextWatcher int
	closed      bool

	// notifyMu serializes commit+notify so batches reach watchers in
	// journal order.
	notifyMu sync.Mutex
}

// NewStore creates a store for a database file path
func NewStore(path string) *Store {
	return &Store{
		Path:     path,
		watchers: make(map[int]func(record.Batch)),
	}
}

// Open opens or creates the database file and its tables
func (s *Store) Open() error {
	db, err := sql.Open("sqlite3", s.Path+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return fmt.Errorf("create tables: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordedVersion returns the schema version recorded in the meta table
func (s *Store) RecordedVersion() (string, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM meta WHERE name = ?`, metaVersion).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read recorded version: %w", err)
	}
	return string(value), true, nil
}

// SetRecordedVersion records the active schema version
func (s *Store) SetRecordedVersion(version string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (name, value) VALUES (?, ?)`,
		metaVersion, []byte(version))
	if err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return nil
}

// RecordedLock returns the version lock recorded in the meta table
func (s *Store) RecordedLock() (record.Lock, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM meta WHERE name = ?`, metaLock).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read recorded lock: %w", err)
	}
	lock, err := decodeLock(value)
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// SetRecordedLock records the version lock
func (s *Store) SetRecordedLock(lock record.Lock) error {
	data, err := encodeLock(lock)
	if err != nil {
		return fmt.Errorf("encode version lock: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (name, value) VALUES (?, ?)`,
		metaLock, data); err != nil {
		return fmt.Errorf("record lock: %w", err)
	}
	return nil
}

// All returns every record of an entity, ordered by key
func (s *Store) All(entity string) ([]*record.Record, error) {
	rows, err := s.db.Query(`SELECT key, fields FROM records WHERE entity = ? ORDER BY key`, entity)
	if err != nil {
		return nil, fmt.Errorf("scan entity %q: %w", entity, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, err
		}
		fields, err := decodeFields(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, &record.Record{
			ID:     record.ID{Entity: entity, Key: key},
			Fields: fields,
		})
	}
	return out, rows.Err()
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
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.db == nil {
		return nil, record.ErrStoreClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &txn{store: s, tx: tx}, nil
}

type txn struct {
	store   *Store
	tx      *sql.Tx
	changes []record.Change
	done    bool
}

func (t *txn) Get(id record.ID) (*record.Record, error) {
	if t.done {
		return nil, record.ErrTxnDone
	}
	var blob []byte
	err := t.tx.QueryRow(`SELECT fields FROM records WHERE entity = ? AND key = ?`,
		id.Entity, id.Key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	fields, err := decodeFields(blob)
	if err != nil {
		return nil, err
	}
	return &record.Record{ID: id, Fields: fields}, nil
}

func (t *txn) Put(rec *record.Record) error {
	if t.done {
		return record.ErrTxnDone
	}
	var exists int
	err := t.tx.QueryRow(`SELECT 1 FROM records WHERE entity = ? AND key = ?`,
		rec.ID.Entity, rec.ID.Key).Scan(&exists)
	kind := record.CHANGE_INSERT
	switch {
	case err == nil:
		kind = record.CHANGE_UPDATE
	case errors.Is(err, sql.ErrNoRows):
	default:
		return err
	}

	blob, err := encodeFields(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	if _, err := t.tx.Exec(`INSERT OR REPLACE INTO records (entity, key, fields) VALUES (?, ?, ?)`,
		rec.ID.Entity, rec.ID.Key, blob); err != nil {
		return err
	}
	t.changes = append(t.changes, record.Change{Kind: kind, ID: rec.ID})
	return nil
}

func (t *txn) Delete(id record.ID) error {
	if t.done {
		return record.ErrTxnDone
	}
	res, err := t.tx.Exec(`DELETE FROM records WHERE entity = ? AND key = ?`, id.Entity, id.Key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		t.changes = append(t.changes, record.Change{Kind: record.CHANGE_DELETE, ID: id})
	}
	return nil
}

func (t *txn) Rollback() error {
	if t.done {
		return record.ErrTxnDone
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *txn) Commit() error {
	if t.done {
		return record.ErrTxnDone
	}
	t.done = true

	if len(t.changes) == 0 {
		return t.tx.Commit()
	}

	s := t.store
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	blob, err := encodeBatch(t.changes)
	if err != nil {
		t.tx.Rollback()
		return fmt.Errorf("encode journal batch: %w", err)
	}
	res, err := t.tx.Exec(`INSERT INTO journal (batch) VALUES (?)`, blob)
	if err != nil {
		t.tx.Rollback()
		return fmt.Errorf("append journal: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		t.tx.Rollback()
		return err
	}
	if err := t.tx.Commit(); err != nil {
		return err
	}

	batch := record.Batch{Seq: uint64(seq), Changes: t.changes}
	s.mu.Lock()
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
