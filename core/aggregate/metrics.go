package aggregate

import "github.com/GeorGeWzw/aggregates-go/core/metrics"

// RepoMetrics is the instrumentation surface of the repository. The
// prometheus adapter provides the real implementation; the default is a nop.
type RepoMetrics interface {
	RepoLoadDuration(aggType string) metrics.Timer
	RepoSaveDuration(aggType string) metrics.Timer
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)
	StreamConflict(aggType string)

	MementoHit(aggType string)
	MementoMiss(aggType string)
	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer
}

type nopRepoMetrics struct{}

var _ RepoMetrics = nopRepoMetrics{}

func NopRepoMetrics() RepoMetrics { return nopRepoMetrics{} }

func (nopRepoMetrics) RepoLoadDuration(string) metrics.Timer     { return metrics.NopTimer() }
func (nopRepoMetrics) RepoSaveDuration(string) metrics.Timer     { return metrics.NopTimer() }
func (nopRepoMetrics) StoreLoadDuration(string) metrics.Timer    { return metrics.NopTimer() }
func (nopRepoMetrics) StoreAppendDuration(string) metrics.Timer  { return metrics.NopTimer() }
func (nopRepoMetrics) EventsAppended(string, int)                {}
func (nopRepoMetrics) StreamConflict(string)                     {}
func (nopRepoMetrics) MementoHit(string)                         {}
func (nopRepoMetrics) MementoMiss(string)                        {}
func (nopRepoMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopRepoMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }

// MetricsOption plugs a RepoMetrics into a repository.
type MetricsOption valueOption[RepoMetrics]

func WithMetrics(m RepoMetrics) MetricsOption         { return MetricsOption{v: m} }
func (o MetricsOption) applyToRepository(r *repoConfig) { r.metrics = o.v }
