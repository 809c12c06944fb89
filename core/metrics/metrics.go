// Package metrics defines the instrument interfaces shared between the
// aggregate runtime and pluggable backends (Prometheus, StatsD, etc.).
// Core packages depend on these interfaces only, never on a concrete
// instrumentation library.
package metrics

import "time"

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time; the signature
// matches prometheus.Timer so backends can hand that out directly.
type Timer interface {
	ObserveDuration() time.Duration
}

// nopTimer is a no-op implementation of Timer.
type nopTimer struct{}

func (nopTimer) ObserveDuration() time.Duration { return 0 }

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }
