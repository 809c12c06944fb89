// Package prometheus exports repository and event store metrics to a
// Prometheus registry.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
	"github.com/GeorGeWzw/aggregates-go/core/metrics"
)

// latencyBuckets covers 1ms to 10s.
var latencyBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// repoMetrics implements aggregate.RepoMetrics on a Prometheus registry.
// Duration methods hand out prometheus.Timer values, which satisfy
// metrics.Timer as-is. Every series carries an aggregate_type label.
type repoMetrics struct {
	storeLoad   *prometheus.HistogramVec
	storeAppend *prometheus.HistogramVec
	appended    *prometheus.CounterVec

	repoLoad  *prometheus.HistogramVec
	repoSave  *prometheus.HistogramVec
	conflicts *prometheus.CounterVec

	mementoHits   *prometheus.CounterVec
	mementoMisses *prometheus.CounterVec
	snapLoad      *prometheus.HistogramVec
	snapSave      *prometheus.HistogramVec
}

func histogram(name, help string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: latencyBuckets,
	}, []string{"aggregate_type"})
}

func counter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, []string{"aggregate_type"})
}

// NewRepoMetrics builds the metric set and registers it with reg.
func NewRepoMetrics(reg prometheus.Registerer) aggregate.RepoMetrics {
	m := &repoMetrics{
		storeLoad:     histogram("agg_store_load_duration_seconds", "Time spent reading a stream from the event store."),
		storeAppend:   histogram("agg_store_append_duration_seconds", "Time spent appending envelopes to the event store."),
		appended:      counter("agg_events_appended_total", "Envelopes accepted by the event store."),
		repoLoad:      histogram("agg_repo_load_duration_seconds", "End-to-end repository load time, mementos included."),
		repoSave:      histogram("agg_repo_save_duration_seconds", "End-to-end repository save time, mementos included."),
		conflicts:     counter("agg_stream_conflicts_total", "Appends rejected by optimistic concurrency."),
		mementoHits:   counter("agg_memento_hits_total", "Loads that started from a stored memento."),
		mementoMisses: counter("agg_memento_misses_total", "Loads that replayed the whole stream."),
		snapLoad:      histogram("agg_snapshot_load_duration_seconds", "Time spent fetching a memento from the snapshot store."),
		snapSave:      histogram("agg_snapshot_save_duration_seconds", "Time spent writing a memento to the snapshot store."),
	}

	reg.MustRegister(
		m.storeLoad, m.storeAppend, m.appended,
		m.repoLoad, m.repoSave, m.conflicts,
		m.mementoHits, m.mementoMisses, m.snapLoad, m.snapSave,
	)
	return m
}

func (m *repoMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.storeLoad.WithLabelValues(aggType))
}

func (m *repoMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.storeAppend.WithLabelValues(aggType))
}

func (m *repoMetrics) EventsAppended(aggType string, count int) {
	m.appended.WithLabelValues(aggType).Add(float64(count))
}

func (m *repoMetrics) RepoLoadDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.repoLoad.WithLabelValues(aggType))
}

func (m *repoMetrics) RepoSaveDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.repoSave.WithLabelValues(aggType))
}

func (m *repoMetrics) StreamConflict(aggType string) {
	m.conflicts.WithLabelValues(aggType).Inc()
}

func (m *repoMetrics) MementoHit(aggType string) {
	m.mementoHits.WithLabelValues(aggType).Inc()
}

func (m *repoMetrics) MementoMiss(aggType string) {
	m.mementoMisses.WithLabelValues(aggType).Inc()
}

func (m *repoMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.snapLoad.WithLabelValues(aggType))
}

func (m *repoMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return prometheus.NewTimer(m.snapSave.WithLabelValues(aggType))
}

var _ aggregate.RepoMetrics = (*repoMetrics)(nil)
