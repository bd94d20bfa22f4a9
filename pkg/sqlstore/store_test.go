// ABOUTME: Tests for the SQLite-backed store and journal feed
// ABOUTME: Verifies persistence across reopens and wire codec round-trips

package sqlstore

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nainya/objectstore/pkg/record"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s := NewStore(path)
	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *Store, rec *record.Record) {
	t.Helper()
	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := txn.Put(rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s := NewStore(path)
	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id := record.ID{Entity: "Person", Key: "p1"}
	rec := record.NewRecord(id)
	rec.Set("name", record.NewStringValue("Alice"))
	rec.Set("born", record.NewTimeValue(time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)))
	put(t, s, rec)
	if err := s.SetRecordedVersion("v1"); err != nil {
		t.Fatalf("SetRecordedVersion failed: %v", err)
	}
	if err := s.SetRecordedLock(record.Lock{"Person": "aa"}); err != nil {
		t.Fatalf("SetRecordedLock failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2 := NewStore(path)
	if err := s2.Open(); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	v, ok, err := s2.RecordedVersion()
	if err != nil || !ok || v != "v1" {
		t.Fatalf("Expected recorded v1, got %q (ok=%v, err=%v)", v, ok, err)
	}
	lock, ok, err := s2.RecordedLock()
	if err != nil || !ok || lock["Person"] != "aa" {
		t.Fatalf("Unexpected lock %v (ok=%v, err=%v)", lock, ok, err)
	}

	recs, err := s2.All("Person")
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}
	name, _ := recs[0].Get("name")
	if name.Str != "Alice" {
		t.Errorf("Expected Alice, got %q", name.Str)
	}
	born, _ := recs[0].Get("born")
	if born.Type != record.TYPE_TIME || born.Time.Year() != 1990 {
		t.Errorf("Time value did not survive the round trip: %+v", born)
	}
}

func TestJournalSeqOrdersBatches(t *testing.T) {
	s := setupStore(t)

	var mu sync.Mutex
	var batches []record.Batch
	s.Watch(func(b record.Batch) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	})

	for _, key := range []string{"a", "b", "c"} {
		put(t, s, record.NewRecord(record.ID{Entity: "Person", Key: key}))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	for i := 1; i < len(batches); i++ {
		if batches[i].Seq <= batches[i-1].Seq {
			t.Errorf("Journal seq should increase: %d then %d", batches[i-1].Seq, batches[i].Seq)
		}
	}
	if batches[0].Changes[0].Kind != record.CHANGE_INSERT {
		t.Errorf("First change should be an insert")
	}
}

func TestUpdateAndDeleteKinds(t *testing.T) {
	s := setupStore(t)
	id := record.ID{Entity: "Person", Key: "p1"}
	put(t, s, record.NewRecord(id))

	var mu sync.Mutex
	var kinds []uint8
	s.Watch(func(b record.Batch) {
		mu.Lock()
		for _, c := range b.Changes {
			kinds = append(kinds, c.Kind)
		}
		mu.Unlock()
	})

	rec := record.NewRecord(id)
	rec.Set("name", record.NewStringValue("Alice"))
	put(t, s, rec)

	txn, _ := s.Begin()
	if err := txn.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != record.CHANGE_UPDATE || kinds[1] != record.CHANGE_DELETE {
		t.Errorf("Expected [update delete], got %v", kinds)
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	s := setupStore(t)
	notified := false
	s.Watch(func(record.Batch) { notified = true })

	txn, _ := s.Begin()
	if err := txn.Delete(record.ID{Entity: "Person", Key: "ghost"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if notified {
		t.Error("Deleting a missing record should not journal a batch")
	}
}

func TestTxnGetNotFound(t *testing.T) {
	s := setupStore(t)
	txn, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer txn.Rollback()
	if _, err := txn.Get(record.ID{Entity: "Person", Key: "none"}); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestValueCodecRoundTrip(t *testing.T) {
	fields := map[string]record.Value{
		"bytes":  record.NewBytesValue([]byte{1, 2, 3}),
		"string": record.NewStringValue("hi"),
		"int":    record.NewInt64Value(-9),
		"uint":   record.NewUint64Value(9),
		"float":  record.NewFloat64Value(2.5),
		"bool":   record.NewBoolValue(true),
		"time":   record.NewTimeValue(time.Unix(1700000000, 0).UTC()),
		"ref":    record.NewRefValue(record.ID{Entity: "Pet", Key: "r1"}),
		"refs": record.NewRefListValue([]record.ID{
			{Entity: "Pet", Key: "r1"},
			{Entity: "Pet", Key: "r2"},
		}),
		"null": record.NullValue(),
	}

	blob, err := encodeFields(fields)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	back, err := decodeFields(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(back) != len(fields) {
		t.Fatalf("Expected %d fields, got %d", len(fields), len(back))
	}
	for name, want := range fields {
		got, ok := back[name]
		if !ok {
			t.Errorf("Field %q missing after round trip", name)
			continue
		}
		if !want.Equal(got) {
			t.Errorf("Field %q: got %+v, want %+v", name, got, want)
		}
	}
}
