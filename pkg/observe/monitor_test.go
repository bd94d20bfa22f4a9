// ABOUTME: Tests for list and object monitors over an in-memory store
// ABOUTME: Verifies snapshots, event batches, sections, refetch and fan-out order

package observe

import (
	"sync"
	"testing"
	"time"

	"github.com/nainya/objectstore/pkg/memstore"
	"github.com/nainya/objectstore/pkg/record"
)

// recordingObserver captures every event and signals on batch boundaries
type recordingObserver struct {
	mu     sync.Mutex
	events []ChangeEvent
	signal chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{signal: make(chan struct{}, 16)}
}

func (o *recordingObserver) record(ev ChangeEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) WillChange()  { o.record(ChangeEvent{Kind: EventWillChange}) }
func (o *recordingObserver) WillRefetch() { o.record(ChangeEvent{Kind: EventWillRefetch}) }

func (o *recordingObserver) DidChange() {
	o.record(ChangeEvent{Kind: EventDidChange})
	o.signal <- struct{}{}
}

func (o *recordingObserver) DidRefetch() {
	o.record(ChangeEvent{Kind: EventDidRefetch})
	o.signal <- struct{}{}
}

func (o *recordingObserver) ObjectInserted(id record.ID, index int) {
	o.record(ChangeEvent{Kind: EventObjectInserted, ID: id, Index: index})
}

func (o *recordingObserver) ObjectDeleted(id record.ID, index int) {
	o.record(ChangeEvent{Kind: EventObjectDeleted, ID: id, Index: index})
}

func (o *recordingObserver) ObjectUpdated(id record.ID, index int) {
	o.record(ChangeEvent{Kind: EventObjectUpdated, ID: id, Index: index})
}

func (o *recordingObserver) ObjectMoved(id record.ID, from, to int) {
	o.record(ChangeEvent{Kind: EventObjectMoved, ID: id, FromIndex: from, ToIndex: to})
}

func (o *recordingObserver) SectionInserted(index int) {
	o.record(ChangeEvent{Kind: EventSectionInserted, Index: index})
}

func (o *recordingObserver) SectionDeleted(index int) {
	o.record(ChangeEvent{Kind: EventSectionDeleted, Index: index})
}

func (o *recordingObserver) snapshot() []ChangeEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ChangeEvent, len(o.events))
	copy(out, o.events)
	return out
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for delivery")
	}
}

func setupMonitorStore(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.NewStore()
	if err := store.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func putTask(t *testing.T, store *memstore.Store, key string, order int64, status string) record.ID {
	t.Helper()
	id := record.ID{Entity: "Task", Key: key}
	rec := record.NewRecord(id)
	rec.Set("order", record.NewInt64Value(order))
	rec.Set("status", record.NewStringValue(status))
	txn, err := store.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := txn.Put(rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return id
}

func deleteTask(t *testing.T, store *memstore.Store, id record.ID) {
	t.Helper()
	txn, err := store.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := txn.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestMonitorInitialSnapshot(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "c", 3, "open")
	putTask(t, store, "a", 1, "open")
	putTask(t, store, "b", 2, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	got := m.IDs()
	if len(got) != 3 {
		t.Fatalf("Expected 3 IDs, got %d", len(got))
	}
	for i, key := range []string{"a", "b", "c"} {
		if got[i].Key != key {
			t.Errorf("Position %d: expected %q, got %q", i, key, got[i].Key)
		}
	}
	if m.State() != StateIdle {
		t.Errorf("Expected idle state, got %v", m.State())
	}
}

func TestMonitorDescendingOrder(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "a", 1, "open")
	putTask(t, store, "b", 2, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order", Descending: true}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	got := m.IDs()
	if got[0].Key != "b" || got[1].Key != "a" {
		t.Errorf("Expected [b a], got %v", got)
	}
}

func TestMonitorFilter(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "a", 1, "open")
	putTask(t, store, "b", 2, "done")

	m := NewListMonitor(store, Query{
		Entity:  "Task",
		OrderBy: "order",
		Filter: func(r *record.Record) bool {
			v, _ := r.Get("status")
			return v.Str == "open"
		},
	}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	got := m.IDs()
	if len(got) != 1 || got[0].Key != "a" {
		t.Errorf("Expected filtered [a], got %v", got)
	}
}

func TestMonitorDeliversInsertBatch(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	id := putTask(t, store, "a", 1, "open")
	waitSignal(t, obs.signal)

	events := obs.snapshot()
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %v", len(events), events)
	}
	if events[0].Kind != EventWillChange {
		t.Errorf("First event should be WillChange, got %v", events[0].Kind)
	}
	if events[1].Kind != EventObjectInserted || events[1].ID != id || events[1].Index != 0 {
		t.Errorf("Expected insert of %v@0, got %+v", id, events[1])
	}
	if events[2].Kind != EventDidChange {
		t.Errorf("Last event should be DidChange, got %v", events[2].Kind)
	}
	if len(m.IDs()) != 1 {
		t.Errorf("Snapshot should hold the inserted record")
	}
}

func TestMonitorDeliversUpdateAndDelete(t *testing.T) {
	store := setupMonitorStore(t)
	id := putTask(t, store, "a", 1, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// In-place update: same position, changed content
	putTask(t, store, "a", 1, "done")
	waitSignal(t, obs.signal)

	events := obs.snapshot()
	if len(events) != 3 || events[1].Kind != EventObjectUpdated || events[1].ID != id {
		t.Fatalf("Expected update batch, got %v", events)
	}

	deleteTask(t, store, id)
	waitSignal(t, obs.signal)

	events = obs.snapshot()[3:]
	if len(events) != 3 || events[1].Kind != EventObjectDeleted || events[1].Index != 0 {
		t.Fatalf("Expected delete batch, got %v", events)
	}
	if len(m.IDs()) != 0 {
		t.Error("Snapshot should be empty after delete")
	}
}

func TestMonitorReportsMoveNotUpdate(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "a", 1, "open")
	putTask(t, store, "b", 2, "open")
	putTask(t, store, "c", 3, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// Reorder c to the front
	putTask(t, store, "c", 0, "open")
	waitSignal(t, obs.signal)

	events := obs.snapshot()
	var moves, updates int
	for _, ev := range events {
		switch ev.Kind {
		case EventObjectMoved:
			moves++
			if ev.ID.Key != "c" || ev.FromIndex != 2 || ev.ToIndex != 0 {
				t.Errorf("Expected c moving 2->0, got %s %d->%d", ev.ID.Key, ev.FromIndex, ev.ToIndex)
			}
		case EventObjectUpdated:
			updates++
		}
	}
	if moves != 1 {
		t.Errorf("Expected 1 move, got %d", moves)
	}
	if updates != 0 {
		t.Errorf("A moved record should not also report an update, got %d", updates)
	}
}

func TestMonitorSectionEvents(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "a", 1, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order", SectionBy: "status"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	sections := m.Sections()
	if len(sections) != 1 || sections[0].Key != "open" {
		t.Fatalf("Expected one open section, got %v", sections)
	}

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// New status introduces a section
	putTask(t, store, "b", 2, "done")
	waitSignal(t, obs.signal)

	var sectionInserts int
	for _, ev := range obs.snapshot() {
		if ev.Kind == EventSectionInserted {
			sectionInserts++
		}
	}
	if sectionInserts != 1 {
		t.Errorf("Expected 1 section insert, got %d", sectionInserts)
	}
	if len(m.Sections()) != 2 {
		t.Errorf("Expected 2 sections, got %d", len(m.Sections()))
	}
}

func TestMonitorEmptyDiffReturnsToIdle(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{
		Entity: "Task",
		Filter: func(*record.Record) bool { return false },
	}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// Relevant commit, but the filter drops the record: empty edit script
	putTask(t, store, "a", 1, "open")

	select {
	case <-obs.signal:
		t.Fatal("Filtered-out mutation should not produce a delivery")
	case <-time.After(100 * time.Millisecond):
	}
	if got := m.State(); got != StateIdle {
		t.Errorf("Expected idle state after an empty edit script, got %v", got)
	}
}

// gateStore blocks one All call until released, holding a snapshot fetch
// in flight
type gateStore struct {
	*memstore.Store
	mu      sync.Mutex
	gate    chan struct{}
	blocked chan struct{}
}

func (s *gateStore) All(entity string) ([]*record.Record, error) {
	s.mu.Lock()
	gate, blocked := s.gate, s.blocked
	s.gate = nil
	s.mu.Unlock()
	if gate != nil {
		close(blocked)
		<-gate
	}
	return s.Store.All(entity)
}

func (s *gateStore) arm() (release func(), blocked chan struct{}) {
	gate := make(chan struct{})
	blocked = make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.blocked = blocked
	s.mu.Unlock()
	return func() { close(gate) }, blocked
}

func TestMonitorRefetchSupersedesInFlightDiff(t *testing.T) {
	inner := setupMonitorStore(t)
	putTask(t, inner, "a", 1, "open")

	store := &gateStore{Store: inner}
	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// The next snapshot fetch (the diff's) blocks until released
	release, blocked := store.arm()

	commitErr := make(chan error, 1)
	go func() {
		txn, err := inner.Begin()
		if err != nil {
			commitErr <- err
			return
		}
		rec := record.NewRecord(record.ID{Entity: "Task", Key: "b"})
		rec.Set("order", record.NewInt64Value(2))
		rec.Set("status", record.NewStringValue("open"))
		if err := txn.Put(rec); err != nil {
			commitErr <- err
			return
		}
		commitErr <- txn.Commit()
	}()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the diff's snapshot fetch")
	}

	// Refetch while the diff is in flight; it must win the cycle
	m.Refetch()
	waitSignal(t, obs.signal)

	release()
	if err := <-commitErr; err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// The superseded diff's outcome is discarded entirely
	time.Sleep(100 * time.Millisecond)
	events := obs.snapshot()
	if len(events) != 2 || events[0].Kind != EventWillRefetch || events[1].Kind != EventDidRefetch {
		t.Fatalf("Expected only refetch boundaries, got %v", events)
	}
	if got := m.IDs(); len(got) != 2 {
		t.Errorf("Refetched snapshot should hold both records, got %v", got)
	}
	if got := m.State(); got != StateIdle {
		t.Errorf("Expected idle state after the superseded cycle, got %v", got)
	}
}

func TestMonitorConcurrentStartStop(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{Entity: "Task"}, MonitorConfig{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := m.Start(); err != nil {
			t.Errorf("Start failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		m.Stop()
	}()
	wg.Wait()

	// However the race resolves, the stopped monitor ignores mutations
	putTask(t, store, "a", 1, "open")
	if len(m.IDs()) != 0 {
		t.Error("Stopped monitor should not update its snapshot")
	}
}

func TestMonitorRefetchReplacesSnapshot(t *testing.T) {
	store := setupMonitorStore(t)
	putTask(t, store, "a", 1, "open")

	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	m.Refetch()
	waitSignal(t, obs.signal)

	events := obs.snapshot()
	if len(events) != 2 || events[0].Kind != EventWillRefetch || events[1].Kind != EventDidRefetch {
		t.Fatalf("Refetch should deliver only refetch boundaries, got %v", events)
	}
	if len(m.IDs()) != 1 {
		t.Errorf("Refetched snapshot should hold existing records")
	}
}

func TestMonitorObserverRegistrationOrder(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	var mu sync.Mutex
	var calls []string
	second := newRecordingObserver()

	first := &orderProbe{name: "first", mu: &mu, calls: &calls}
	firstHandle := m.Subscribe(first)
	m.Subscribe(&orderProbe{name: "second", mu: &mu, calls: &calls})
	m.Subscribe(second)

	putTask(t, store, "a", 1, "open")
	waitSignal(t, second.signal)

	mu.Lock()
	got := append([]string(nil), calls...)
	mu.Unlock()
	if len(got) < 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("Observers should be notified in registration order, got %v", got)
	}

	// After unsubscribing, the first probe sees nothing further
	m.Unsubscribe(firstHandle)
	mu.Lock()
	calls = calls[:0]
	mu.Unlock()

	putTask(t, store, "b", 2, "open")
	waitSignal(t, second.signal)

	mu.Lock()
	got = append([]string(nil), calls...)
	mu.Unlock()
	for _, name := range got {
		if name == "first" {
			t.Error("Unsubscribed observer should not be notified")
		}
	}
}

type orderProbe struct {
	BaseObserver
	name  string
	mu    *sync.Mutex
	calls *[]string
}

func (p *orderProbe) WillChange() {
	p.mu.Lock()
	*p.calls = append(*p.calls, p.name)
	p.mu.Unlock()
}

func TestMonitorIgnoresOtherEntities(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{Entity: "Task", OrderBy: "order"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	// A mutation in another entity must not produce a delivery
	id := record.ID{Entity: "Other", Key: "x"}
	txn, _ := store.Begin()
	txn.Put(record.NewRecord(id))
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	select {
	case <-obs.signal:
		t.Fatal("Unrelated entity should not trigger delivery")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	store := setupMonitorStore(t)
	m := NewListMonitor(store, Query{Entity: "Task"}, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m.Stop()
	m.Stop()

	// Mutations after stop are ignored
	putTask(t, store, "a", 1, "open")
	if len(m.IDs()) != 0 {
		t.Error("Stopped monitor should not update its snapshot")
	}
}

func TestObjectMonitorUpdateAndDelete(t *testing.T) {
	store := setupMonitorStore(t)
	id := putTask(t, store, "a", 1, "open")

	m := NewObjectMonitor(store, id, MonitorConfig{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	obs := newRecordingObserver()
	m.Subscribe(obs)

	putTask(t, store, "a", 2, "open")
	waitSignal(t, obs.signal)

	events := obs.snapshot()
	if len(events) != 3 || events[1].Kind != EventObjectUpdated || events[1].ID != id {
		t.Fatalf("Expected update batch, got %v", events)
	}
	if m.Deleted() {
		t.Error("Record should not report deleted yet")
	}

	// An unrelated record's mutation is invisible
	putTask(t, store, "other", 9, "open")

	deleteTask(t, store, id)
	waitSignal(t, obs.signal)

	events = obs.snapshot()[3:]
	if len(events) != 3 || events[1].Kind != EventObjectDeleted {
		t.Fatalf("Expected delete batch, got %v", events)
	}
	if !m.Deleted() {
		t.Error("Record should report deleted")
	}
}
