// ABOUTME: DataStack wiring registry, store, fan-out, logging and metrics
// ABOUTME: Open resolves the active schema and enforces the version lock

package stack

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nainya/objectstore/internal/logger"
	"github.com/nainya/objectstore/internal/metrics"
	"github.com/nainya/objectstore/pkg/field"
	"github.com/nainya/objectstore/pkg/memstore"
	"github.com/nainya/objectstore/pkg/observe"
	"github.com/nainya/objectstore/pkg/record"
	"github.com/nainya/objectstore/pkg/schema"
)

// ErrNotOpen indicates a stack operation before Open succeeded
var ErrNotOpen = errors.New("stack: not open")

// Options configures a DataStack. Zero values get working defaults: a fresh
// registry, an in-memory store, the global logger, and unregistered metrics.
// Pass metrics built against a real Registerer to expose them.
type Options struct {
	Registry *schema.Registry
	Store    record.Store
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// DataStack is the explicit context object threaded through all operations:
// one registry, one backing store, one active model set.
type DataStack struct {
	registry *schema.Registry
	store    record.Store
	log      *logger.Logger
	met      *metrics.Metrics

	mu          sync.Mutex
	model       *schema.ModelSet
	opened      bool
	cancelCount func()
}

// New creates a stack. Call Open before use.
func New(opts Options) *DataStack {
	registry := opts.Registry
	if registry == nil {
		registry = schema.NewRegistry()
	}
	store := opts.Store
	if store == nil {
		store = memstore.NewStore()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.NewMetrics(nil)
	}
	return &DataStack{
		registry: registry,
		store:    store,
		log:      log,
		met:      met,
	}
}

// Registry returns the stack's schema registry
func (s *DataStack) Registry() *schema.Registry {
	return s.registry
}

// Store returns the stack's backing store
func (s *DataStack) Store() record.Store {
	return s.store
}

// Model returns the active model set, nil before Open
func (s *DataStack) Model() *schema.ModelSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Open opens the store, resolves the active schema version against the
// store's recorded version, and enforces the version lock. A fresh store
// gets the resolved version and lock recorded; a store with a lock that
// differs from the in-process one fails with ErrMigrationRequired.
func (s *DataStack) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	if err := s.store.Open(); err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	recordedStr, hasVersion, err := s.store.RecordedVersion()
	if err != nil {
		return err
	}
	var recorded *schema.Version
	if hasVersion {
		v := schema.Version(recordedStr)
		recorded = &v
	}

	model, err := s.registry.ActiveModels(recorded)
	if err != nil {
		s.met.RecordResolution("error")
		return err
	}
	s.met.RecordResolution("ok")

	if !hasVersion {
		if err := s.store.SetRecordedVersion(string(model.Version())); err != nil {
			return err
		}
		if err := s.store.SetRecordedLock(model.Lock().ToRecordLock()); err != nil {
			return err
		}
	} else {
		recLock, hasLock, err := s.store.RecordedLock()
		if err != nil {
			return err
		}
		if hasLock {
			if err := model.Lock().Check(schema.LockFromRecord(recLock)); err != nil {
				s.met.RecordLockCheck("mismatch")
				s.log.Error("version lock mismatch").
					Str("version", string(model.Version())).
					Err(err).Send()
				return err
			}
			s.met.RecordLockCheck("ok")
		} else {
			if err := s.store.SetRecordedLock(model.Lock().ToRecordLock()); err != nil {
				return err
			}
		}
	}

	s.cancelCount = s.store.Watch(func(b record.Batch) {
		for _, c := range b.Changes {
			s.met.RecordMutation(record.KindName(c.Kind))
		}
		s.met.RecordBatch()
	})

	s.model = model
	s.opened = true
	s.log.LogSchemaResolved(string(model.Version()), hasVersion, len(model.Entities()))
	return nil
}

// Close stops the mutation counter and closes the store
func (s *DataStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCount != nil {
		s.cancelCount()
		s.cancelCount = nil
	}
	s.opened = false
	return s.store.Close()
}

// Session begins a unit of work against the stack's store and model
func (s *DataStack) Session() (*field.Session, error) {
	s.mu.Lock()
	model := s.model
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, ErrNotOpen
	}
	return field.NewSession(s.store, model)
}

// ListMonitor creates a monitor observing a query against the stack's store
func (s *DataStack) ListMonitor(q observe.Query) (*observe.ListMonitor, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, ErrNotOpen
	}
	return observe.NewListMonitor(s.store, q, observe.MonitorConfig{
		Logger:  s.log,
		Metrics: s.met,
	}), nil
}

// ObjectMonitor creates a monitor observing one record identity
func (s *DataStack) ObjectMonitor(id record.ID) (*observe.ObjectMonitor, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, ErrNotOpen
	}
	return observe.NewObjectMonitor(s.store, id, observe.MonitorConfig{
		Logger:  s.log,
		Metrics: s.met,
	}), nil
}
