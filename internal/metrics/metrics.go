// Package metrics provides Prometheus metrics for ObjectStore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for ObjectStore
type Metrics struct {
	// Schema metrics
	SchemaResolutionsTotal *prometheus.CounterVec
	LockChecksTotal        *prometheus.CounterVec

	// Observation metrics
	DiffsComputedTotal   prometheus.Counter
	DiffDuration         prometheus.Histogram
	DiffsSupersededTotal prometheus.Counter
	RefetchesTotal       prometheus.Counter
	EventsDeliveredTotal *prometheus.CounterVec
	SubscriptionsActive  prometheus.Gauge

	// Store metrics
	StoreMutationsTotal  *prometheus.CounterVec
	BatchesNotifiedTotal prometheus.Counter
}

// NewMetrics creates all ObjectStore metrics, registering them with reg.
// A nil reg creates unregistered metrics, which tests rely on to avoid
// duplicate registration in the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	// Schema metrics
	m.SchemaResolutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_schema_resolutions_total",
			Help: "Total number of schema version resolutions",
		},
		[]string{"status"},
	)

	m.LockChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_lock_checks_total",
			Help: "Total number of version lock compatibility checks",
		},
		[]string{"status"},
	)

	// Observation metrics
	m.DiffsComputedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "objectstore_diffs_computed_total",
			Help: "Total number of edit scripts computed",
		},
	)

	m.DiffDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectstore_diff_duration_seconds",
			Help:    "Duration of edit script computation in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	m.DiffsSupersededTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "objectstore_diffs_superseded_total",
			Help: "Total number of in-flight diffs discarded by a refetch",
		},
	)

	m.RefetchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "objectstore_refetches_total",
			Help: "Total number of full snapshot refetches",
		},
	)

	m.EventsDeliveredTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_events_delivered_total",
			Help: "Total number of change events delivered to observers",
		},
		[]string{"kind"},
	)

	m.SubscriptionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "objectstore_subscriptions_active",
			Help: "Number of active observer subscriptions",
		},
	)

	// Store metrics
	m.StoreMutationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectstore_store_mutations_total",
			Help: "Total number of record mutations committed to the backing store",
		},
		[]string{"kind"},
	)

	m.BatchesNotifiedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "objectstore_batches_notified_total",
			Help: "Total number of mutation batches fanned out to watchers",
		},
	)

	return m
}

// RecordResolution records a schema resolution outcome
func (m *Metrics) RecordResolution(status string) {
	if m == nil {
		return
	}
	m.SchemaResolutionsTotal.WithLabelValues(status).Inc()
}

// RecordLockCheck records a version lock comparison outcome
func (m *Metrics) RecordLockCheck(status string) {
	if m == nil {
		return
	}
	m.LockChecksTotal.WithLabelValues(status).Inc()
}

// RecordDiff records one computed edit script
func (m *Metrics) RecordDiff(duration time.Duration) {
	if m == nil {
		return
	}
	m.DiffsComputedTotal.Inc()
	m.DiffDuration.Observe(duration.Seconds())
}

// RecordSupersededDiff records a diff discarded by a refetch
func (m *Metrics) RecordSupersededDiff() {
	if m == nil {
		return
	}
	m.DiffsSupersededTotal.Inc()
}

// RecordRefetch records a full snapshot refetch
func (m *Metrics) RecordRefetch() {
	if m == nil {
		return
	}
	m.RefetchesTotal.Inc()
}

// RecordDelivery records a delivered change event
func (m *Metrics) RecordDelivery(kind string) {
	if m == nil {
		return
	}
	m.EventsDeliveredTotal.WithLabelValues(kind).Inc()
}

// SubscriptionAdded increments the active subscription gauge
func (m *Metrics) SubscriptionAdded() {
	if m == nil {
		return
	}
	m.SubscriptionsActive.Inc()
}

// SubscriptionRemoved decrements the active subscription gauge
func (m *Metrics) SubscriptionRemoved() {
	if m == nil {
		return
	}
	m.SubscriptionsActive.Dec()
}

// RecordMutation records one committed record mutation
func (m *Metrics) RecordMutation(kind string) {
	if m == nil {
		return
	}
	m.StoreMutationsTotal.WithLabelValues(kind).Inc()
}

// RecordBatch records one mutation batch fanned out to watchers
func (m *Metrics) RecordBatch() {
	if m == nil {
		return
	}
	m.BatchesNotifiedTotal.Inc()
}
