// ABOUTME: Observable list over one entity with typed change delivery
// ABOUTME: Diffs in the store's domain, delivers FIFO on a dedicated goroutine

package observe

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/objectstore/internal/logger"
	"github.com/nainya/objectstore/internal/metrics"
	"github.com/nainya/objectstore/pkg/record"
)

// Monitor states
type State uint8

const (
	StateIdle State = iota
	StateComputingDiff
	StateDelivering
	StateRefetching
)

// Query selects and orders the records a ListMonitor observes
type Query struct {
	Entity     string
	OrderBy    string // field name; "" orders by record key
	Descending bool
	SectionBy  string // optional field grouping records into sections
	Filter     func(*record.Record) bool
}

// Handle identifies one observer subscription
type Handle string

// MonitorConfig carries optional collaborators for a monitor
type MonitorConfig struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Buffer  int // delivery queue depth; defaults to 128
}

// Section is one contiguous group of the snapshot
type Section struct {
	Key string
	IDs []record.ID
}

type observerEntry struct {
	handle Handle
	obs    Observer
}

type delivery struct {
	gen    uint64
	events []ChangeEvent
}

// ListMonitor observes all records of one entity matching a query. Store
// mutation batches are diffed against the previous snapshot; the resulting
// events are delivered to observers in registration order, FIFO in commit
// order, on the monitor's delivery goroutine.
type ListMonitor struct {
	store record.Store
	query Query
	log   *logger.Logger
	met   *metrics.Metrics

	mu          sync.Mutex
	state       State
	gen         uint64
	sections    []Section
	observers   []observerEntry
	started     bool
	stopped     bool
	cancelWatch func()

	deliveries chan delivery
	done       chan struct{}
	drained    chan struct{}
}

// NewListMonitor creates a monitor for a query. Call Start to begin
// observation.
func NewListMonitor(store record.Store, query Query, cfg MonitorConfig) *ListMonitor {
	log := cfg.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 128
	}
	return &ListMonitor{
		store:      store,
		query:      query,
		log:        log.ObserveLogger(query.Entity),
		met:        cfg.Metrics,
		deliveries: make(chan delivery, buffer),
		done:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

// Start takes the initial snapshot and begins watching the store
func (m *ListMonitor) Start() error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	go m.deliverLoop()

	sections, err := m.fetchSnapshot()
	if err != nil {
		return err
	}

	cancel := m.store.Watch(m.onBatch)
	m.mu.Lock()
	if m.stopped {
		// Stop won the race; the watch must not outlive it.
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.sections = sections
	m.cancelWatch = cancel
	m.mu.Unlock()
	return nil
}

// Stop cancels observation and stops the delivery goroutine
func (m *ListMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancelWatch
	started := m.started
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(m.done)
	if started {
		<-m.drained
	}
}

// Subscribe registers an observer. Delivery order across observers is
// registration order.
func (m *ListMonitor) Subscribe(obs Observer) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := Handle(uuid.NewString())
	m.observers = append(m.observers, observerEntry{handle: h, obs: obs})
	m.met.SubscriptionAdded()
	return h
}

// Unsubscribe removes an observer by handle
func (m *ListMonitor) Unsubscribe(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.observers {
		if e.handle == h {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			m.met.SubscriptionRemoved()
			return
		}
	}
}

// State returns the monitor's current state
func (m *ListMonitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sections returns a copy of the current snapshot
func (m *ListMonitor) Sections() []Section {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Section, len(m.sections))
	for i, s := range m.sections {
		ids := make([]record.ID, len(s.IDs))
		copy(ids, s.IDs)
		out[i] = Section{Key: s.Key, IDs: ids}
	}
	return out
}

// IDs returns the flattened current snapshot
func (m *ListMonitor) IDs() []record.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return flatten(m.sections)
}

// Refetch replaces the snapshot wholesale, without diffing. An in-flight
// diff computation is superseded: its outcome is discarded and observers
// see only WillRefetch/DidRefetch for that cycle.
func (m *ListMonitor) Refetch() {
	m.mu.Lock()
	if m.stopped || !m.started {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.state = StateRefetching
	m.mu.Unlock()

	sections, err := m.fetchSnapshot()
	if err != nil {
		m.log.Error("refetch failed").Err(err).Send()
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.sections = sections
	m.mu.Unlock()

	m.met.RecordRefetch()
	m.enqueue(delivery{gen: gen, events: []ChangeEvent{
		{Kind: EventWillRefetch},
		{Kind: EventDidRefetch},
	}})
}

// onBatch handles one committed mutation batch from the store
func (m *ListMonitor) onBatch(batch record.Batch) {
	updated := make(map[record.ID]bool)
	relevant := false
	for _, c := range batch.Changes {
		if c.ID.Entity != m.query.Entity {
			continue
		}
		relevant = true
		if c.Kind == record.CHANGE_UPDATE {
			updated[c.ID] = true
		}
	}
	if !relevant {
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.state = StateComputingDiff
	oldSections := m.sections
	m.mu.Unlock()

	start := time.Now()
	newSections, err := m.fetchSnapshot()
	if err != nil {
		m.log.Error("snapshot fetch failed").Err(err).Send()
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return
	}

	oldFlat := flatten(oldSections)
	newFlat := flatten(newSections)
	script, err := computeEditScript(oldFlat, newFlat, updated)
	if err != nil {
		// A snapshot pair that cannot be diffed forces a refetch; partial
		// delivery is never an option.
		m.log.Warn("diff failed, forcing refetch").Err(err).Send()
		m.Refetch()
		return
	}
	// Sectionless queries group everything under one implicit key; only a
	// sectioned query reports section structure changes.
	var secDeletes, secInserts []int
	if m.query.SectionBy != "" {
		secDeletes, secInserts = diffSectionKeys(sectionKeys(oldSections), sectionKeys(newSections))
	}

	m.mu.Lock()
	if m.gen != gen || m.stopped {
		m.mu.Unlock()
		m.met.RecordSupersededDiff()
		return
	}
	m.sections = newSections
	empty := script.empty() && len(secDeletes) == 0 && len(secInserts) == 0
	if empty {
		// Nothing to deliver, so no delivery will reset the state; the
		// monitor returns to rest here.
		m.state = StateIdle
	}
	m.mu.Unlock()

	m.met.RecordDiff(time.Since(start))
	m.log.LogDiff(m.query.Entity, time.Since(start),
		len(script.deletes), len(script.moves), len(script.inserts), len(script.updates))

	if empty {
		return
	}
	m.enqueue(delivery{gen: gen, events: buildEvents(script, secDeletes, secInserts)})
}

// enqueue hands a delivery to the delivery goroutine, preserving FIFO order
func (m *ListMonitor) enqueue(d delivery) {
	select {
	case m.deliveries <- d:
	case <-m.done:
	}
}

// deliverLoop runs on the monitor's delivery goroutine: the designated
// execution context for observers
func (m *ListMonitor) deliverLoop() {
	defer close(m.drained)
	for {
		select {
		case d := <-m.deliveries:
			m.deliver(d)
		case <-m.done:
			return
		}
	}
}

func (m *ListMonitor) deliver(d delivery) {
	m.mu.Lock()
	if m.gen != d.gen {
		// Superseded by a refetch after enqueue; stale per-item events
		// must not leak through.
		m.mu.Unlock()
		m.met.RecordSupersededDiff()
		return
	}
	m.state = StateDelivering
	observers := make([]observerEntry, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, ev := range d.events {
		for _, e := range observers {
			dispatch(e.obs, ev)
		}
		m.met.RecordDelivery(ev.Kind.String())
	}

	m.mu.Lock()
	if m.gen == d.gen {
		m.state = StateIdle
	}
	m.mu.Unlock()
}

// buildEvents assembles the delivery sequence: WillChange, deletions
// (objects then sections, descending), moves, insertions (sections then
// objects, ascending), updates, DidChange
func buildEvents(script editScript, secDeletes, secInserts []int) []ChangeEvent {
	events := make([]ChangeEvent, 0,
		len(script.deletes)+len(script.moves)+len(script.inserts)+len(script.updates)+len(secDeletes)+len(secInserts)+2)

	events = append(events, ChangeEvent{Kind: EventWillChange})
	for _, d := range script.deletes {
		events = append(events, ChangeEvent{Kind: EventObjectDeleted, ID: d.id, Index: d.index})
	}
	for _, i := range secDeletes {
		events = append(events, ChangeEvent{Kind: EventSectionDeleted, Index: i})
	}
	for _, mv := range script.moves {
		events = append(events, ChangeEvent{Kind: EventObjectMoved, ID: mv.id, FromIndex: mv.from, ToIndex: mv.to})
	}
	for _, i := range secInserts {
		events = append(events, ChangeEvent{Kind: EventSectionInserted, Index: i})
	}
	for _, ins := range script.inserts {
		events = append(events, ChangeEvent{Kind: EventObjectInserted, ID: ins.id, Index: ins.index})
	}
	for _, u := range script.updates {
		events = append(events, ChangeEvent{Kind: EventObjectUpdated, ID: u.id, Index: u.index})
	}
	events = append(events, ChangeEvent{Kind: EventDidChange})
	return events
}

// fetchSnapshot reads, filters, orders and sections the observed records
func (m *ListMonitor) fetchSnapshot() ([]Section, error) {
	records, err := m.store.All(m.query.Entity)
	if err != nil {
		return nil, err
	}

	if m.query.Filter != nil {
		kept := records[:0]
		for _, rec := range records {
			if m.query.Filter(rec) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	sectionKey := func(rec *record.Record) string {
		if m.query.SectionBy == "" {
			return ""
		}
		v, ok := rec.Get(m.query.SectionBy)
		if !ok {
			return ""
		}
		return sectionKeyString(v)
	}

	sort.SliceStable(records, func(i, j int) bool {
		ki, kj := sectionKey(records[i]), sectionKey(records[j])
		if ki != kj {
			return ki < kj
		}
		c := m.compareOrder(records[i], records[j])
		if m.query.Descending {
			return c > 0
		}
		return c < 0
	})

	var sections []Section
	for _, rec := range records {
		key := sectionKey(rec)
		if len(sections) == 0 || sections[len(sections)-1].Key != key {
			sections = append(sections, Section{Key: key})
		}
		last := &sections[len(sections)-1]
		last.IDs = append(last.IDs, rec.ID)
	}
	return sections, nil
}

func (m *ListMonitor) compareOrder(a, b *record.Record) int {
	if m.query.OrderBy != "" {
		va, _ := a.Get(m.query.OrderBy)
		vb, _ := b.Get(m.query.OrderBy)
		if c := record.Compare(va, vb); c != 0 {
			return c
		}
	}
	// Key order is the stable tiebreak.
	switch {
	case a.ID.Key < b.ID.Key:
		return -1
	case a.ID.Key > b.ID.Key:
		return 1
	}
	return 0
}

func sectionKeyString(v record.Value) string {
	switch v.Type {
	case record.TYPE_STRING:
		return v.Str
	case record.TYPE_BYTES:
		return string(v.Bytes)
	}
	// Non-string section keys group by their comparable content.
	return record.TypeName(v.Type) + ":" + stringify(v)
}

func stringify(v record.Value) string {
	switch v.Type {
	case record.TYPE_INT64:
		return strconv.FormatInt(v.I64, 10)
	case record.TYPE_UINT64:
		return strconv.FormatUint(v.U64, 10)
	case record.TYPE_FLOAT64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case record.TYPE_BOOL:
		return strconv.FormatBool(v.Bool)
	case record.TYPE_TIME:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case record.TYPE_REF:
		return v.Ref.String()
	}
	return ""
}

func flatten(sections []Section) []record.ID {
	var out []record.ID
	for _, s := range sections {
		out = append(out, s.IDs...)
	}
	return out
}

func sectionKeys(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Key
	}
	return out
}
