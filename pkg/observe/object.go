// ABOUTME: Observable single object with typed change delivery
package observe

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nainya/objectstore/internal/logger"
	"github.com/nainya/objectstore/internal/metrics"
	"github.com/nainya/objectstore/pkg/record"
)

// ObjectMonitor observes one record by identity. Updates and deletion are
// delivered to observers in registration order on the monitor's delivery
// goroutine, FIFO in commit order.
type ObjectMonitor struct {
	store record.Store
	id    record.ID
	log   *logger.Logger
	met   *metrics.Metrics

	mu          sync.Mutex
	observers   []observerEntry
	started     bool
	stopped     bool
	deleted     bool
	cancelWatch func()

	deliveries chan delivery
	done       chan struct{}
	drained    chan struct{}
}

// NewObjectMonitor creates a monitor for one record identity
func NewObjectMonitor(store record.Store, id record.ID, cfg MonitorConfig) *ObjectMonitor {
	log := cfg.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 128
	}
	return &ObjectMonitor{
		store:      store,
		id:         id,
		log:        log.ObserveLogger(id.String()),
		met:        cfg.Metrics,
		deliveries: make(chan delivery, buffer),
		done:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

// Start begins watching the store
func (m *ObjectMonitor) Start() error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	go m.deliverLoop()

	cancel := m.store.Watch(m.onBatch)
	m.mu.Lock()
	if m.stopped {
		// Stop won the race; the watch must not outlive it.
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.cancelWatch = cancel
	m.mu.Unlock()
	return nil
}

// Stop cancels observation
func (m *ObjectMonitor) Stop() {
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

// Subscribe registers an observer
func (m *ObjectMonitor) Subscribe(obs Observer) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := Handle(uuid.NewString())
	m.observers = append(m.observers, observerEntry{handle: h, obs: obs})
	m.met.SubscriptionAdded()
	return h
}

// Unsubscribe removes an observer by handle
func (m *ObjectMonitor) Unsubscribe(h Handle) {
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

// Deleted reports whether the observed record has been deleted
func (m *ObjectMonitor) Deleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

func (m *ObjectMonitor) onBatch(batch record.Batch) {
	var events []ChangeEvent
	for _, c := range batch.Changes {
		if c.ID != m.id {
			continue
		}
		switch c.Kind {
		case record.CHANGE_UPDATE, record.CHANGE_INSERT:
			events = append(events, ChangeEvent{Kind: EventObjectUpdated, ID: m.id})
		case record.CHANGE_DELETE:
			m.mu.Lock()
			m.deleted = true
			m.mu.Unlock()
			events = append(events, ChangeEvent{Kind: EventObjectDeleted, ID: m.id})
		}
	}
	if len(events) == 0 {
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	wrapped := make([]ChangeEvent, 0, len(events)+2)
	wrapped = append(wrapped, ChangeEvent{Kind: EventWillChange})
	wrapped = append(wrapped, events...)
	wrapped = append(wrapped, ChangeEvent{Kind: EventDidChange})

	select {
	case m.deliveries <- delivery{events: wrapped}:
	case <-m.done:
	}
}

func (m *ObjectMonitor) deliverLoop() {
	defer close(m.drained)
	for {
		select {
		case d := <-m.deliveries:
			m.mu.Lock()
			observers := make([]observerEntry, len(m.observers))
			copy(observers, m.observers)
			m.mu.Unlock()

			for _, ev := range d.events {
				for _, e := range observers {
					dispatch(e.obs, ev)
				}
				m.met.RecordDelivery(ev.Kind.String())
			}
		case <-m.done:
			return
		}
	}
}
